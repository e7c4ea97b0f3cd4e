package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every droidprobe topic.
//
//	droidprobe/system/status                 retained, online/offline (LWT)
//	droidprobe/device/{serial}/info          retained, the device record
//	droidprobe/device/{serial}/status        retained, adb connection state
//	droidprobe/command/{serial}/extract      request an extraction pass
const TopicPrefix = "droidprobe"

// Topics builds droidprobe topic names.
type Topics struct{}

// SystemStatus is droidprobe's own availability topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// DeviceInfo is the retained topic holding a device's information record.
func (Topics) DeviceInfo(serial string) string {
	return fmt.Sprintf("%s/device/%s/info", TopicPrefix, EscapeSerial(serial))
}

// DeviceStatus is the retained topic holding a device's connection state.
func (Topics) DeviceStatus(serial string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefix, EscapeSerial(serial))
}

// ExtractCommand is the topic on which an extraction of serial is requested.
func (Topics) ExtractCommand(serial string) string {
	return fmt.Sprintf("%s/command/%s/extract", TopicPrefix, EscapeSerial(serial))
}

// AllExtractCommands matches extraction requests for every device.
func (Topics) AllExtractCommands() string {
	return TopicPrefix + "/command/+/extract"
}

// AllDeviceInfo matches every device's info topic.
func (Topics) AllDeviceInfo() string {
	return TopicPrefix + "/device/+/info"
}

// ParseExtractCommand returns the serial of an extraction request topic.
func (Topics) ParseExtractCommand(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "command" || parts[3] != "extract" || parts[2] == "" {
		return "", fmt.Errorf("%w: %q is not an extract command", ErrInvalidTopic, topic)
	}
	return UnescapeSerial(parts[2]), nil
}

// EscapeSerial makes a serial usable as a single topic level. Network
// serials ("192.168.1.20:5555") are safe; '/', '+' and '#' are not.
func EscapeSerial(serial string) string {
	return serialEscaper.Replace(serial)
}

// UnescapeSerial reverses EscapeSerial.
func UnescapeSerial(level string) string {
	return serialUnescaper.Replace(level)
}

var (
	serialEscaper   = strings.NewReplacer("%", "%25", "/", "%2F", "+", "%2B", "#", "%23")
	serialUnescaper = strings.NewReplacer("%2F", "/", "%2B", "+", "%23", "#", "%25", "%")
)
