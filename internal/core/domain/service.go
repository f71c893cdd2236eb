package domain

import (
	"fmt"
	"strings"
)

type ServiceKind int

const (
	SERVICE_KIND_INVERTER_CHARGER ServiceKind = iota
	SERVICE_KIND_SOLAR_CHARGER
)

const (
	SERVICE_NAME_INVERTER_CHARGER = "vebus"
	SERVICE_NAME_SOLAR_CHARGER    = "solarcharger"
)

func (k ServiceKind) String() string {
	switch k {
	case SERVICE_KIND_INVERTER_CHARGER:
		return SERVICE_NAME_INVERTER_CHARGER
	case SERVICE_KIND_SOLAR_CHARGER:
		return SERVICE_NAME_SOLAR_CHARGER
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

func ParseServiceKind(name string) (ServiceKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SERVICE_NAME_INVERTER_CHARGER, "inverter", "multi":
		return SERVICE_KIND_INVERTER_CHARGER, nil
	case SERVICE_NAME_SOLAR_CHARGER, "solar", "solar_charger":
		return SERVICE_KIND_SOLAR_CHARGER, nil
	}
	return 0, fmt.Errorf("unknown service kind %q", name)
}

const (
	PATH_MODE               = "/Mode"
	PATH_STATE              = "/State"
	PATH_MPP_OPERATION_MODE = "/MppOperationMode"
	PATH_CONNECTED          = "/Connected"
	PATH_STATUS             = "/Status"
)

// PathDescriptor describes one published path of a service kind.
type PathDescriptor struct {
	Path        string
	Default     any
	Required    bool
	Gate        CapabilityGroup
	Description string
	Decimals    int
	// nil for static and derived paths
	Value func(t *Telemetry) *float64
}

// IsDerived reports paths whose value always comes from state derivation.
func (d PathDescriptor) IsDerived() bool {
	return d.Path == PATH_MODE || d.Path == PATH_STATE || d.Path == PATH_MPP_OPERATION_MODE
}

func (d PathDescriptor) IsConnectivity() bool {
	return d.Path == PATH_CONNECTED || d.Path == PATH_STATUS
}

// ServiceIdentity holds the static values published on the management paths.
type ServiceIdentity struct {
	DeviceInstance  int
	ProductId       int
	ProductName     string
	CustomName      string
	FirmwareVersion string
	Serial          string
	ProcessName     string
	ProcessVersion  string
	Connection      string
}
