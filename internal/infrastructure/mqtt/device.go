package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// InfoMessage is the payload of a device info topic.
type InfoMessage struct {
	Serial    string         `json:"serial"`
	Status    string         `json:"status"`
	Groups    []string       `json:"groups"`
	Fields    map[string]any `json:"fields"`
	Timestamp time.Time      `json:"timestamp"`
}

// StatusMessage is the payload of a device status topic.
type StatusMessage struct {
	Serial    string    `json:"serial"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtractRequest is the payload of an extract command. An empty payload is
// a request for every group without forcing.
type ExtractRequest struct {
	Groups []string `json:"groups,omitempty"`
	Force  bool     `json:"force,omitempty"`
}

// ExtractHandler handles a remote extraction request for serial.
type ExtractHandler func(serial string, req ExtractRequest) error

// PublishDeviceInfo publishes msg, retained, on the device's info topic.
func (c *Client) PublishDeviceInfo(msg InfoMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding device info: %w", err)
	}
	return c.PublishRetained(Topics{}.DeviceInfo(msg.Serial), payload)
}

// PublishDeviceStatus publishes msg, retained, on the device's status topic.
func (c *Client) PublishDeviceStatus(msg StatusMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding device status: %w", err)
	}
	return c.PublishRetained(Topics{}.DeviceStatus(msg.Serial), payload)
}

// ClearDevice removes a device's retained messages by publishing empty
// retained payloads.
func (c *Client) ClearDevice(serial string) error {
	t := Topics{}
	if err := c.PublishRetained(t.DeviceInfo(serial), nil); err != nil {
		return err
	}
	return c.PublishRetained(t.DeviceStatus(serial), nil)
}

// SubscribeExtract calls handler for every extract command.
func (c *Client) SubscribeExtract(handler ExtractHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	return c.Subscribe(Topics{}.AllExtractCommands(), byte(c.cfg.QoS), extractMessageHandler(handler))
}

func extractMessageHandler(handler ExtractHandler) MessageHandler {
	return func(topic string, payload []byte) error {
		serial, err := Topics{}.ParseExtractCommand(topic)
		if err != nil {
			return err
		}
		req, err := DecodeExtractRequest(payload)
		if err != nil {
			return err
		}
		return handler(serial, req)
	}
}

// DecodeExtractRequest parses an extract command payload.
func DecodeExtractRequest(payload []byte) (ExtractRequest, error) {
	var req ExtractRequest
	if len(payload) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return ExtractRequest{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return req, nil
}
