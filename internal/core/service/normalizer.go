package service

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/core/port"
	"mppsolar2mqtt/pkg/mppsolar"

	"github.com/spf13/cast"
)

const (
	// heat sink readings above this are reported in tenths of a degree
	TEMPERATURE_DESCALE_THRESHOLD = 100.0
)

var ErrNoUsableFields = errors.New("response has no usable fields")

// numericField names a value and its aliases. The first alias present in a
// response wins, so firmware variants reporting both yield one result.
type numericField struct {
	names []string
	set   func(n *normalization, v float64)
}

type flagField struct {
	names []string
	set   func(t *domain.Telemetry, v bool)
}

var numericFields = []numericField{
	{[]string{"ac output voltage"}, func(n *normalization, v float64) { n.t.ACOutput.Voltage = &v }},
	{[]string{"ac output frequency"}, func(n *normalization, v float64) { n.t.ACOutput.Frequency = &v }},
	{[]string{"ac output active power"}, func(n *normalization, v float64) { n.t.ACOutput.ActivePower = &v }},
	{[]string{"ac output apparent power"}, func(n *normalization, v float64) { n.t.ACOutput.ApparentPower = &v }},
	{[]string{"ac output load"}, func(n *normalization, v float64) { n.t.ACOutput.LoadPercent = &v }},
	{[]string{"ac input voltage"}, func(n *normalization, v float64) { n.t.ACInput.Voltage = &v }},
	{[]string{"ac input frequency"}, func(n *normalization, v float64) { n.t.ACInput.Frequency = &v }},
	{[]string{"battery voltage"}, func(n *normalization, v float64) { n.t.Battery.Voltage = &v }},
	{[]string{"battery capacity"}, func(n *normalization, v float64) { n.t.Battery.SoC = &v }},
	{[]string{"battery charging current"}, func(n *normalization, v float64) { n.charging = &v }},
	{[]string{"battery discharge current"}, func(n *normalization, v float64) { n.discharging = &v }},
	{[]string{"pv input voltage"}, func(n *normalization, v float64) { n.t.PV.Voltage = &v }},
	{[]string{"pv input current for battery", "pv input current"}, func(n *normalization, v float64) { n.t.PV.Current = &v }},
	{[]string{"pv charging power", "pv input power"}, func(n *normalization, v float64) { n.t.PV.Power = &v }},
	{[]string{"bus voltage"}, func(n *normalization, v float64) { n.t.System.BusVoltage = &v }},
	{[]string{"inverter heat sink temperature"}, setHeatSinkTemperature},
}

var flagFields = []flagField{
	{[]string{"is switched on"}, func(t *domain.Telemetry, v bool) { t.Status.SwitchedOn = &v }},
	{[]string{"is charging on"}, func(t *domain.Telemetry, v bool) { t.Status.Charging = &v }},
	{[]string{"is scc charging on"}, func(t *domain.Telemetry, v bool) { t.Status.SolarCharging = &v }},
	{[]string{"is charging to float"}, func(t *domain.Telemetry, v bool) { t.Status.FloatCharging = &v }},
}

func setHeatSinkTemperature(n *normalization, v float64) {
	n.t.System.HeatSinkTemperature = domain.Float(descaleTemperature(v))
}

type normalization struct {
	t           *domain.Telemetry
	charging    *float64
	discharging *float64
}

// DefaultResponseNormalizer turns a raw QPIGS style response into telemetry.
// Field names are matched ignoring case, and underscores count as spaces.
type DefaultResponseNormalizer struct {
}

func (DefaultResponseNormalizer) Normalize(raw mppsolar.Response) (t *domain.Telemetry, err error) {
	defer func() {
		if r := recover(); r != nil {
			t = nil
			err = fmt.Errorf("normalize: %v", r)
		}
	}()

	n := normalization{t: &domain.Telemetry{}}
	usable := 0

	fields := canonicalFields(raw)

	for _, nf := range numericFields {
		for _, name := range nf.names {
			field, ok := fields[name]
			if !ok {
				continue
			}
			v, err := cast.ToFloat64E(field.Value)
			if err != nil {
				continue
			}
			nf.set(&n, v)
			usable++
			break
		}
	}
	for _, ff := range flagFields {
		for _, name := range ff.names {
			field, ok := fields[name]
			if !ok {
				continue
			}
			v, err := cast.ToBoolE(field.Value)
			if err != nil {
				continue
			}
			ff.set(n.t, v)
			usable++
			break
		}
	}

	n.deriveACCurrent()
	n.deriveBatteryCurrent()
	n.derivePVPower()

	if usable == 0 {
		return n.t, ErrNoUsableFields
	}
	return n.t, nil
}

func (n *normalization) deriveACCurrent() {
	v, p := n.t.ACOutput.Voltage, n.t.ACOutput.ActivePower
	if v != nil && p != nil && *v > 0 {
		n.t.ACOutput.Current = domain.Float(*p / *v)
	}
}

// charging wins when both directions are reported
func (n *normalization) deriveBatteryCurrent() {
	if n.charging == nil && n.discharging == nil {
		return
	}
	switch {
	case n.charging != nil && *n.charging > 0:
		n.t.Battery.Current = domain.Float(*n.charging)
	case n.discharging != nil && *n.discharging > 0:
		n.t.Battery.Current = domain.Float(-*n.discharging)
	default:
		n.t.Battery.Current = domain.Float(0)
	}
}

func (n *normalization) derivePVPower() {
	pv := &n.t.PV
	if pv.Power == nil && pv.Voltage != nil && pv.Current != nil {
		pv.Power = domain.Float(*pv.Voltage * *pv.Current)
	}
}

func descaleTemperature(v float64) float64 {
	if v > TEMPERATURE_DESCALE_THRESHOLD {
		return v / 10
	}
	return v
}

// canonicalFields keys the response by canonical name. Raw names are visited
// in sorted order so spellings that collide resolve the same way every time.
func canonicalFields(raw mppsolar.Response) map[string]mppsolar.Field {
	fields := make(map[string]mppsolar.Field, len(raw))
	for _, name := range slices.Sorted(maps.Keys(raw)) {
		key := canonicalFieldName(name)
		if _, ok := fields[key]; !ok {
			fields[key] = raw[name]
		}
	}
	return fields
}

func canonicalFieldName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(name, "_", " "))), " ")
}

// ensure interface compliance
var _ port.ResponseNormalizer = DefaultResponseNormalizer{}
