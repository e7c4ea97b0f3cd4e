//go:build integration

package mqtt

import (
	"encoding/json"
	"testing"
	"time"
)

// Integration tests need a broker at 127.0.0.1:1883:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func TestIntegration_DeviceInfoRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "droidprobe-test-pub"
	pub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	cfg.Broker.ClientID = "droidprobe-test-sub"
	sub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	received := make(chan InfoMessage, 1)
	err = sub.Subscribe(Topics{}.DeviceInfo("it-serial"), 1, func(_ string, payload []byte) error {
		var msg InfoMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return err
		}
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	want := InfoMessage{Serial: "it-serial", Status: "device", Fields: map[string]any{"model": "Pixel 6"}}
	if err := pub.PublishDeviceInfo(want); err != nil {
		t.Fatalf("PublishDeviceInfo() error = %v", err)
	}

	select {
	case got := <-received:
		if got.Serial != want.Serial || got.Fields["model"] != "Pixel 6" {
			t.Errorf("received %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for device info")
	}

	if err := pub.ClearDevice("it-serial"); err != nil {
		t.Errorf("ClearDevice() error = %v", err)
	}
}

func TestIntegration_ExtractRequest(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "droidprobe-test-extract"
	c, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	got := make(chan string, 1)
	if err := c.SubscribeExtract(func(serial string, req ExtractRequest) error {
		got <- serial
		return nil
	}); err != nil {
		t.Fatalf("SubscribeExtract() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := c.Publish(Topics{}.ExtractCommand("emulator-5554"), []byte(`{"groups":["cpu"]}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	select {
	case serial := <-got:
		if serial != "emulator-5554" {
			t.Errorf("serial = %q", serial)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for extract request")
	}
}
