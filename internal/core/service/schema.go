package service

import (
	"mppsolar2mqtt/internal/core/domain"
)

// SchemaRegistry holds the ordered path schema of every service kind.
type SchemaRegistry struct {
	schemas map[domain.ServiceKind][]domain.PathDescriptor
}

func NewSchemaRegistry(identity domain.ServiceIdentity) *SchemaRegistry {
	return &SchemaRegistry{
		schemas: map[domain.ServiceKind][]domain.PathDescriptor{
			domain.SERVICE_KIND_INVERTER_CHARGER: withGates(append(managementPaths(identity), inverterChargerPaths()...)),
			domain.SERVICE_KIND_SOLAR_CHARGER:    withGates(append(managementPaths(identity), solarChargerPaths()...)),
		},
	}
}

// Schema returns every path known for kind, instantiated or not.
func (r *SchemaRegistry) Schema(kind domain.ServiceKind) []domain.PathDescriptor {
	return r.schemas[kind]
}

// PathsFor returns the paths to instantiate for kind under caps.
func (r *SchemaRegistry) PathsFor(kind domain.ServiceKind, caps domain.CapabilitySet) []domain.PathDescriptor {
	var paths []domain.PathDescriptor
	for _, d := range r.schemas[kind] {
		if d.Required || caps.Has(d.Gate) {
			paths = append(paths, d)
		}
	}
	return paths
}

func withGates(paths []domain.PathDescriptor) []domain.PathDescriptor {
	for i := range paths {
		if !paths[i].Required {
			paths[i].Gate = domain.GroupForPath(paths[i].Path)
		}
	}
	return paths
}

func managementPaths(id domain.ServiceIdentity) []domain.PathDescriptor {
	return []domain.PathDescriptor{
		{Path: "/Mgmt/ProcessName", Default: id.ProcessName, Required: true, Description: "Process Name"},
		{Path: "/Mgmt/ProcessVersion", Default: id.ProcessVersion, Required: true, Description: "Process Version"},
		{Path: "/Mgmt/Connection", Default: id.Connection, Required: true, Description: "Connection Type"},
		{Path: "/DeviceInstance", Default: id.DeviceInstance, Required: true, Description: "Device Instance"},
		{Path: "/ProductId", Default: id.ProductId, Required: true, Description: "Product ID"},
		{Path: "/ProductName", Default: id.ProductName, Required: true, Description: "Product Name"},
		{Path: "/CustomName", Default: id.CustomName, Required: true, Description: "Custom Name"},
		{Path: "/FirmwareVersion", Default: id.FirmwareVersion, Required: true, Description: "Firmware Version"},
		{Path: "/Serial", Default: id.Serial, Required: true, Description: "Serial Number"},
		{Path: domain.PATH_CONNECTED, Default: 0, Required: true, Description: "Connected"},
		{Path: domain.PATH_STATUS, Default: 0, Required: true, Description: "Status"},
	}
}

func inverterChargerPaths() []domain.PathDescriptor {
	return []domain.PathDescriptor{
		{Path: domain.PATH_MODE, Default: domain.MODE_ON, Required: true, Description: "Mode"},
		{Path: domain.PATH_STATE, Default: domain.STATE_OFF, Required: true, Description: "State"},
		{Path: "/System/BusVoltage", Description: "Bus Voltage", Decimals: 0,
			Value: func(t *domain.Telemetry) *float64 { return t.System.BusVoltage }},
		{Path: "/Ac/Out/L1/V", Description: "AC Output Voltage", Decimals: 1,
			Value: func(t *domain.Telemetry) *float64 { return t.ACOutput.Voltage }},
		{Path: "/Ac/Out/L1/I", Description: "AC Output Current", Decimals: 2,
			Value: func(t *domain.Telemetry) *float64 { return t.ACOutput.Current }},
		{Path: "/Ac/Out/L1/P", Description: "AC Output Power", Decimals: 0,
			Value: func(t *domain.Telemetry) *float64 { return t.ACOutput.ActivePower }},
		{Path: "/Ac/Out/L1/S", Description: "AC Output Apparent Power", Decimals: 0,
			Value: func(t *domain.Telemetry) *float64 { return t.ACOutput.ApparentPower }},
		{Path: "/Ac/Out/L1/F", Description: "AC Output Frequency", Decimals: 1,
			Value: func(t *domain.Telemetry) *float64 { return t.ACOutput.Frequency }},
		{Path: "/Ac/Out/L1/LoadPercent", Description: "AC Output Load", Decimals: 0,
			Value: func(t *domain.Telemetry) *float64 { return t.ACOutput.LoadPercent }},
		{Path: "/Ac/ActiveIn/L1/V", Description: "AC Input Voltage", Decimals: 1,
			Value: func(t *domain.Telemetry) *float64 { return t.ACInput.Voltage }},
		{Path: "/Ac/ActiveIn/L1/F", Description: "AC Input Frequency", Decimals: 1,
			Value: func(t *domain.Telemetry) *float64 { return t.ACInput.Frequency }},
		{Path: "/Dc/0/Voltage", Description: "Battery Voltage", Decimals: 2,
			Value: func(t *domain.Telemetry) *float64 { return t.Battery.Voltage }},
		{Path: "/Dc/0/Current", Description: "Battery Current", Decimals: 1,
			Value: func(t *domain.Telemetry) *float64 { return t.Battery.Current }},
		{Path: "/Dc/0/Power", Description: "Battery Power", Decimals: 0,
			Value: batteryPower},
		{Path: "/Soc", Description: "State of Charge", Decimals: 0,
			Value: func(t *domain.Telemetry) *float64 { return t.Battery.SoC }},
		{Path: "/Dc/0/Temperature", Description: "Heat Sink Temperature", Decimals: 1,
			Value: func(t *domain.Telemetry) *float64 { return t.System.HeatSinkTemperature }},
		{Path: "/Pv/V", Description: "PV Voltage", Decimals: 1,
			Value: func(t *domain.Telemetry) *float64 { return t.PV.Voltage }},
		{Path: "/Pv/I", Description: "PV Current", Decimals: 1,
			Value: func(t *domain.Telemetry) *float64 { return t.PV.Current }},
		{Path: "/Pv/P", Description: "PV Power", Decimals: 0,
			Value: func(t *domain.Telemetry) *float64 { return t.PV.Power }},
	}
}

func solarChargerPaths() []domain.PathDescriptor {
	return []domain.PathDescriptor{
		{Path: domain.PATH_MODE, Default: domain.SOLAR_MODE_OFF, Required: true, Description: "Mode"},
		{Path: domain.PATH_STATE, Default: domain.STATE_OFF, Required: true, Description: "State"},
		{Path: domain.PATH_MPP_OPERATION_MODE, Default: domain.MPPT_OFF, Required: true, Description: "MPP Operation Mode"},
		{Path: "/Pv/V", Description: "PV Voltage", Decimals: 1,
			Value: func(t *domain.Telemetry) *float64 { return t.PV.Voltage }},
		{Path: "/Pv/I", Description: "PV Current", Decimals: 1,
			Value: func(t *domain.Telemetry) *float64 { return t.PV.Current }},
		{Path: "/Yield/Power", Description: "PV Power", Decimals: 0,
			Value: func(t *domain.Telemetry) *float64 { return t.PV.Power }},
		{Path: "/Dc/0/Voltage", Description: "Battery Voltage", Decimals: 2,
			Value: func(t *domain.Telemetry) *float64 { return t.Battery.Voltage }},
		{Path: "/Dc/0/Current", Description: "Charge Current", Decimals: 1,
			Value: solarChargeCurrent},
	}
}

func batteryPower(t *domain.Telemetry) *float64 {
	if t.Battery.Voltage == nil || t.Battery.Current == nil {
		return nil
	}
	return domain.Float(*t.Battery.Voltage * *t.Battery.Current)
}

func solarChargeCurrent(t *domain.Telemetry) *float64 {
	if t.PV.Power == nil || t.Battery.Voltage == nil || *t.Battery.Voltage <= 0 {
		return nil
	}
	return domain.Float(*t.PV.Power / *t.Battery.Voltage)
}
