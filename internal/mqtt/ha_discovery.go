package mqtt

import (
	"fmt"
	"strings"

	"mppsolar2mqtt/internal/core/domain"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	Icon              string            `json:"icon,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	SerialNumber string   `json:"serial_number,omitempty"`
}

type pathClass struct {
	unit        string
	deviceClass string
	stateClass  string
}

var (
	classVoltage     = pathClass{unit: "V", deviceClass: "voltage", stateClass: "measurement"}
	classCurrent     = pathClass{unit: "A", deviceClass: "current", stateClass: "measurement"}
	classPower       = pathClass{unit: "W", deviceClass: "power", stateClass: "measurement"}
	classApparent    = pathClass{unit: "VA", deviceClass: "apparent_power", stateClass: "measurement"}
	classFrequency   = pathClass{unit: "Hz", deviceClass: "frequency", stateClass: "measurement"}
	classBattery     = pathClass{unit: "%", deviceClass: "battery", stateClass: "measurement"}
	classPercent     = pathClass{unit: "%", stateClass: "measurement"}
	classTemperature = pathClass{unit: "°C", deviceClass: "temperature", stateClass: "measurement"}
)

// classifyPath derives unit and device class from the last path segment.
func classifyPath(path string) pathClass {
	segment := path[strings.LastIndex(path, "/")+1:]
	switch segment {
	case "V", "Voltage", "BusVoltage":
		return classVoltage
	case "I", "Current":
		return classCurrent
	case "P", "Power":
		return classPower
	case "S":
		return classApparent
	case "F":
		return classFrequency
	case "Soc":
		return classBattery
	case "LoadPercent":
		return classPercent
	case "Temperature":
		return classTemperature
	}
	return pathClass{}
}

// IsDiagnosticPath reports paths that describe the service rather than the device readings.
func IsDiagnosticPath(path string) bool {
	return strings.HasPrefix(path, "/Mgmt/") || path == "/DeviceInstance" || path == "/ProductId" ||
		path == "/ProductName" || path == "/FirmwareVersion" || path == "/CustomName" || path == "/Serial"
}

// ObjectId is the entity id of a service path, e.g. vebus_ac_out_l1_v.
func ObjectId(service string, path string) string {
	return strings.ToLower(service + strings.ReplaceAll(path, "/", "_"))
}

type topicNamer interface {
	PathTopic(service string, path string) string
	BridgeStateTopic() string
}

func PathToHADiscoveryMessage(client topicNamer, service string, path string, description string,
	identity domain.ServiceIdentity, uniqueId string) HADiscoveryConfig {
	class := classifyPath(path)
	name := description
	if name == "" {
		name = strings.TrimPrefix(path, "/")
	}
	disConfig := HADiscoveryConfig{
		Device:            device(identity, uniqueId),
		StateTopic:        client.PathTopic(service, path),
		StateClass:        class.stateClass,
		DeviceClass:       class.deviceClass,
		UnitOfMeasurement: class.unit,
		AvTopic:           client.BridgeStateTopic(),
		Name:              fmt.Sprintf("%s %s", service, name),
		UniqueId:          fmt.Sprintf("%s_%s", uniqueId, ObjectId(service, path)),
		Platform:          "mqtt",
	}
	if IsDiagnosticPath(path) || path == domain.PATH_CONNECTED || path == domain.PATH_STATUS {
		disConfig.EntityCategory = "diagnostic"
	}
	return disConfig
}

func device(identity domain.ServiceIdentity, uniqueId string) HADiscoveryDevice {
	name := identity.CustomName
	if name == "" {
		name = identity.ProductName
	}
	return HADiscoveryDevice{
		Id:           []string{uniqueId},
		Manufacturer: "MPP Solar",
		Version:      identity.FirmwareVersion,
		Model:        identity.ProductName,
		Name:         name,
		SerialNumber: identity.Serial,
	}
}
