package service

import (
	"testing"

	"mppsolar2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

var testIdentity = domain.ServiceIdentity{
	DeviceInstance:  288,
	ProductId:       domain.PRODUCT_ID,
	ProductName:     domain.PRODUCT_NAME,
	FirmwareVersion: "PI30",
	Serial:          "92932004102453",
	ProcessName:     "mppsolar2mqtt",
	ProcessVersion:  "test",
	Connection:      "Serial /dev/ttyUSB0",
}

func pathNames(paths []domain.PathDescriptor) []string {
	var names []string
	for _, p := range paths {
		names = append(names, p.Path)
	}
	return names
}

func TestPathsForAllCapabilities(t *testing.T) {

	assert := assert.New(t)

	registry := NewSchemaRegistry(testIdentity)
	names := pathNames(registry.PathsFor(domain.SERVICE_KIND_INVERTER_CHARGER, domain.AssumeAllCapabilities(false)))

	assert.Contains(names, "/Ac/Out/L1/V")
	assert.Contains(names, "/Dc/0/Voltage")
	assert.Contains(names, "/Dc/0/Temperature")
	assert.Contains(names, "/Pv/V")
	assert.Contains(names, "/System/BusVoltage", "ungated path")
	assert.Contains(names, domain.PATH_MODE)
	assert.Contains(names, domain.PATH_CONNECTED)
	assert.NotContains(names, "/Ac/ActiveIn/L1/V", "AC input not configured")
	assert.NotContains(names, domain.PATH_MPP_OPERATION_MODE)
}

func TestPathsForGatesByNamespace(t *testing.T) {

	assert := assert.New(t)

	registry := NewSchemaRegistry(testIdentity)
	caps := domain.AssumeAllCapabilities(true)
	caps.HasBatteryData = false
	caps.HasTemperature = false
	caps.HasPVData = false

	names := pathNames(registry.PathsFor(domain.SERVICE_KIND_INVERTER_CHARGER, caps))

	assert.Contains(names, "/Ac/ActiveIn/L1/V")
	assert.Contains(names, "/Ac/Out/L1/P")
	for _, p := range []string{"/Dc/0/Voltage", "/Dc/0/Current", "/Dc/0/Power", "/Soc", "/Dc/0/Temperature", "/Pv/V", "/Pv/P"} {
		assert.NotContains(names, p)
	}

	// required paths survive any capability set
	none := pathNames(registry.PathsFor(domain.SERVICE_KIND_SOLAR_CHARGER, domain.CapabilitySet{}))
	assert.Contains(none, domain.PATH_MODE)
	assert.Contains(none, domain.PATH_STATE)
	assert.Contains(none, domain.PATH_MPP_OPERATION_MODE)
	assert.Contains(none, "/DeviceInstance")
	assert.NotContains(none, "/Pv/V")
	assert.NotContains(none, "/Yield/Power")
}

func TestSchemaOrderAndDefaults(t *testing.T) {

	assert := assert.New(t)

	registry := NewSchemaRegistry(testIdentity)
	schema := registry.Schema(domain.SERVICE_KIND_SOLAR_CHARGER)

	assert.Equal("/Mgmt/ProcessName", schema[0].Path)
	for _, d := range schema {
		switch d.Path {
		case "/DeviceInstance":
			assert.Equal(288, d.Default)
		case "/Serial":
			assert.Equal("92932004102453", d.Default)
		case "/Yield/Power":
			assert.Equal(domain.GROUP_PV, d.Gate)
			assert.False(d.Required)
		}
	}
}
