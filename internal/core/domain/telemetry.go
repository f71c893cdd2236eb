package domain

const (
	MIN_VALID_AC_VOLTAGE = 180.0
	MAX_VALID_AC_VOLTAGE = 280.0
)

// Telemetry is the normalized reading of one poll cycle. A nil field was not
// reported by the device, which is different from a reported zero.
type Telemetry struct {
	ACOutput ACOutputReadings
	ACInput  ACInputReadings
	Battery  BatteryReadings
	PV       PVReadings
	System   SystemReadings
	Status   StatusFlags
}

type ACOutputReadings struct {
	Voltage       *float64
	Frequency     *float64
	ActivePower   *float64
	ApparentPower *float64
	Current       *float64
	LoadPercent   *float64
}

type ACInputReadings struct {
	Voltage   *float64
	Frequency *float64
}

type BatteryReadings struct {
	Voltage *float64
	// positive while charging, negative while discharging
	Current *float64
	SoC     *float64
}

type PVReadings struct {
	Voltage *float64
	Current *float64
	Power   *float64
}

type SystemReadings struct {
	BusVoltage *float64
	// °C
	HeatSinkTemperature *float64
}

type StatusFlags struct {
	SwitchedOn    *bool
	Charging      *bool
	SolarCharging *bool
	FloatCharging *bool
}

func (r ACOutputReadings) Present() bool {
	return anySet(r.Voltage, r.Frequency, r.ActivePower, r.ApparentPower, r.Current, r.LoadPercent)
}

func (r ACInputReadings) Present() bool {
	return anySet(r.Voltage, r.Frequency)
}

func (r BatteryReadings) Present() bool {
	return anySet(r.Voltage, r.Current, r.SoC)
}

func (r PVReadings) Present() bool {
	return anySet(r.Voltage, r.Current, r.Power)
}

// Valid reports whether the AC output voltage is inside the plausible band.
// A cycle without AC output voltage is not valid.
func (t *Telemetry) Valid() bool {
	if t == nil || t.ACOutput.Voltage == nil {
		return false
	}
	v := *t.ACOutput.Voltage
	return v >= MIN_VALID_AC_VOLTAGE && v <= MAX_VALID_AC_VOLTAGE
}

func Float(v float64) *float64 {
	return &v
}

func Bool(v bool) *bool {
	return &v
}

func IsTrue(v *bool) bool {
	return v != nil && *v
}

func anySet(values ...*float64) bool {
	for _, v := range values {
		if v != nil {
			return true
		}
	}
	return false
}
