package domain

// Operating mode and state codes as understood by Victron style monitors.
const (
	MODE_CHARGER_ONLY  = 1
	MODE_INVERTER_ONLY = 2
	MODE_ON            = 3
	MODE_OFF           = 4

	SOLAR_MODE_ON  = 1
	SOLAR_MODE_OFF = 4

	STATE_OFF        = 0
	STATE_BULK       = 3
	STATE_ABSORPTION = 4
	STATE_FLOAT      = 5
	STATE_INVERTING  = 9

	MPPT_OFF             = 0
	MPPT_VOLTAGE_LIMITED = 1
	MPPT_ACTIVE          = 2
)

type OperatingState struct {
	Mode  int
	State int
	// only for the solar charger kind
	MppOperationMode *int
}

func (s OperatingState) Value(path string) (any, bool) {
	switch path {
	case PATH_MODE:
		return s.Mode, true
	case PATH_STATE:
		return s.State, true
	case PATH_MPP_OPERATION_MODE:
		if s.MppOperationMode != nil {
			return *s.MppOperationMode, true
		}
	}
	return nil, false
}
