// Package mqtt publishes droidprobe's device records to an MQTT broker and
// accepts remote extraction requests.
//
// Topic hierarchy (see Topics):
//
//	droidprobe/system/status               retained, online/offline (LWT)
//	droidprobe/device/{serial}/info        retained InfoMessage
//	droidprobe/device/{serial}/status      retained StatusMessage
//	droidprobe/command/{serial}/extract    ExtractRequest
//
// Serials are escaped so that network serials and unusual characters fit in
// a single topic level.
//
// The client wraps paho.mqtt.golang: auto-reconnect with back-off, restored
// subscriptions, a Last Will on the system status topic, and handlers that
// recover from panics.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeExtract(func(serial string, req mqtt.ExtractRequest) error {
//	    _, err := sess.Extract(ctx, serial, extraction.Options{Groups: req.Groups, Force: req.Force})
//	    return err
//	})
package mqtt
