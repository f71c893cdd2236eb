package domain

import "strings"

type CapabilityGroup int

const (
	// paths outside every gated namespace
	GROUP_NONE CapabilityGroup = iota
	GROUP_AC_OUTPUT
	GROUP_AC_INPUT
	GROUP_BATTERY
	GROUP_PV
	GROUP_TEMPERATURE
)

var OptionalGroups = []CapabilityGroup{GROUP_AC_INPUT, GROUP_BATTERY, GROUP_PV, GROUP_TEMPERATURE}

func (g CapabilityGroup) String() string {
	switch g {
	case GROUP_AC_OUTPUT:
		return "ac_output"
	case GROUP_AC_INPUT:
		return "ac_input"
	case GROUP_BATTERY:
		return "battery"
	case GROUP_PV:
		return "pv"
	case GROUP_TEMPERATURE:
		return "temperature"
	default:
		return "none"
	}
}

type CapabilitySet struct {
	HasACOutput            bool
	HasACInput             bool
	HasBatteryData         bool
	HasPVData              bool
	HasTemperature         bool
	MinimumRequirementsMet bool
}

// AssumeAllCapabilities is the set used once the identity probe has been
// attempted. AC input depends on the wiring and is configured.
func AssumeAllCapabilities(hasACInput bool) CapabilitySet {
	return CapabilitySet{
		HasACOutput:            true,
		HasACInput:             hasACInput,
		HasBatteryData:         true,
		HasPVData:              true,
		HasTemperature:         true,
		MinimumRequirementsMet: true,
	}
}

func (c CapabilitySet) Has(group CapabilityGroup) bool {
	switch group {
	case GROUP_NONE:
		return true
	case GROUP_AC_OUTPUT:
		return c.HasACOutput
	case GROUP_AC_INPUT:
		return c.HasACInput
	case GROUP_BATTERY:
		return c.HasBatteryData
	case GROUP_PV:
		return c.HasPVData
	case GROUP_TEMPERATURE:
		return c.HasTemperature
	}
	return false
}

func (c CapabilitySet) With(group CapabilityGroup, present bool) CapabilitySet {
	switch group {
	case GROUP_AC_OUTPUT:
		c.HasACOutput = present
		c.MinimumRequirementsMet = present
	case GROUP_AC_INPUT:
		c.HasACInput = present
	case GROUP_BATTERY:
		c.HasBatteryData = present
	case GROUP_PV:
		c.HasPVData = present
	case GROUP_TEMPERATURE:
		c.HasTemperature = present
	}
	return c
}

// GroupForPath maps a path to the capability gating it, by namespace.
func GroupForPath(path string) CapabilityGroup {
	switch {
	case strings.Contains(path, "Temperature"):
		return GROUP_TEMPERATURE
	case strings.HasPrefix(path, "/Ac/Out/"):
		return GROUP_AC_OUTPUT
	case strings.HasPrefix(path, "/Ac/In/"), strings.HasPrefix(path, "/Ac/ActiveIn/"):
		return GROUP_AC_INPUT
	case strings.HasPrefix(path, "/Dc/"), path == "/Soc":
		return GROUP_BATTERY
	case strings.HasPrefix(path, "/Pv/"), strings.HasPrefix(path, "/Yield/"):
		return GROUP_PV
	}
	return GROUP_NONE
}
