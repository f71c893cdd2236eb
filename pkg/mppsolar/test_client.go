package mppsolar

import (
	"context"
	"fmt"
	"sync"
	"time"
)

func CreateTestClient() *TestClient {
	return &TestClient{
		responses: map[string]Response{
			COMMAND_PROTOCOL_ID: {
				FIELD_PROTOCOL_ID: NewField("PI30", ""),
			},
			COMMAND_SERIAL_NUMBER: {
				FIELD_SERIAL_NUMBER: NewField("92932004102453", ""),
			},
			COMMAND_GENERAL_STATUS: TestGeneralStatus(),
		},
		errors: map[string]error{},
		delays: map[string]time.Duration{},
	}
}

// TestGeneralStatus is a QPIGS response of an inverter running on battery
// while the solar charger is active.
func TestGeneralStatus() Response {
	return Response{
		"AC Input Voltage":               NewField(0.0, "V"),
		"AC Input Frequency":             NewField(0.0, "Hz"),
		"AC Output Voltage":              NewField(230.1, "V"),
		"AC Output Frequency":            NewField(49.9, "Hz"),
		"AC Output Apparent Power":       NewField(552.0, "VA"),
		"AC Output Active Power":         NewField(506.0, "W"),
		"AC Output Load":                 NewField(11.0, "%"),
		"BUS Voltage":                    NewField(388.0, "V"),
		"Battery Voltage":                NewField(52.4, "V"),
		"Battery Charging Current":       NewField(8.0, "A"),
		"Battery Capacity":               NewField(87.0, "%"),
		"Inverter Heat Sink Temperature": NewField(455.0, "°C"),
		"PV Input Current for Battery":   NewField(5.0, "A"),
		"PV Input Voltage":               NewField(118.3, "V"),
		"Battery Voltage from SCC":       NewField(52.4, "V"),
		"Battery Discharge Current":      NewField(0.0, "A"),
		"Is SBU Priority Version Added":  NewField(0, "bool"),
		"Is Configuration Changed":       NewField(0, "bool"),
		"Is SCC Firmware Updated":        NewField(0, "bool"),
		"Is Load On":                     NewField(1, "bool"),
		"Is Charging On":                 NewField(1, "bool"),
		"Is SCC Charging On":             NewField(1, "bool"),
		"Is AC Charging On":              NewField(0, "bool"),
		"Is Switched On":                 NewField(1, "bool"),
		"Is Charging to Float":           NewField(0, "bool"),
		"PV Charging Power":              NewField(591.0, "W"),
	}
}

// TestClient answers commands from canned responses.
type TestClient struct {
	mu        sync.Mutex
	responses map[string]Response
	errors    map[string]error
	delays    map[string]time.Duration
	calls     []string
	openErr   error
}

func (c *TestClient) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openErr
}

func (c *TestClient) Close() error {
	return nil
}

func (c *TestClient) SendCommand(ctx context.Context, command string) (Response, error) {
	c.mu.Lock()
	c.calls = append(c.calls, command)
	delay := c.delays[command]
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := c.errors[command]; ok {
		return nil, err
	}
	resp, ok := c.responses[command]
	if !ok {
		return nil, fmt.Errorf("%w: unknown command %s", ErrDeviceError, command)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *TestClient) SetResponse(command string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[command] = resp
	delete(c.errors, command)
}

func (c *TestClient) SetError(command string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[command] = err
}

// SetDelay makes command answer only after d, or fail once ctx expires.
func (c *TestClient) SetDelay(command string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays[command] = d
}

func (c *TestClient) SetOpenError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

func (c *TestClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// ensure interface compliance
var _ Client = (*TestClient)(nil)
