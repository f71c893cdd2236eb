package mppsolar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	COMMAND_PROTOCOL_ID    = "QPI"
	COMMAND_SERIAL_NUMBER  = "QID"
	COMMAND_GENERAL_STATUS = "QPIGS"

	FIELD_ERROR         = "ERROR"
	FIELD_PROTOCOL_ID   = "Protocol ID"
	FIELD_SERIAL_NUMBER = "Serial Number"
)

var (
	ErrDeviceError     = errors.New("device returned an error")
	ErrInvalidResponse = errors.New("invalid response")
)

// Client sends named commands to an MPP-Solar device and returns the decoded response.
type Client interface {
	Open() error
	Close() error
	SendCommand(ctx context.Context, command string) (Response, error)
}

// Field is a single decoded response entry. Decoders emit it as
// [value, unit, {metadata}] but a bare scalar is accepted too.
type Field struct {
	Value any
	Unit  string
	Meta  map[string]any
}

type Response map[string]Field

func NewField(value any, unit string) Field {
	return Field{Value: value, Unit: unit}
}

func (f *Field) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		var scalar any
		if scalarErr := json.Unmarshal(data, &scalar); scalarErr != nil {
			return err
		}
		f.Value = scalar
		return nil
	}
	if len(parts) > 0 {
		if err := json.Unmarshal(parts[0], &f.Value); err != nil {
			return err
		}
	}
	// unit and metadata are informative only
	if len(parts) > 1 {
		_ = json.Unmarshal(parts[1], &f.Unit)
	}
	if len(parts) > 2 {
		_ = json.Unmarshal(parts[2], &f.Meta)
	}
	return nil
}

func (f Field) MarshalJSON() ([]byte, error) {
	meta := f.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	return json.Marshal([]any{f.Value, f.Unit, meta})
}

// Err reports a device side error carried inside an otherwise decoded response.
func (r Response) Err() error {
	if f, ok := r[FIELD_ERROR]; ok {
		return fmt.Errorf("%w: %v", ErrDeviceError, f.Value)
	}
	return nil
}

func (r Response) String(name string) (string, bool) {
	f, ok := r[name]
	if !ok || f.Value == nil {
		return "", false
	}
	return fmt.Sprintf("%v", f.Value), true
}

func ParseResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if resp == nil {
		resp = Response{}
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// IsTransportError reports failures where the device could not be reached at
// all, as opposed to a device that answered with an error or garbage.
func IsTransportError(err error) bool {
	return err != nil && !errors.Is(err, ErrDeviceError) && !errors.Is(err, ErrInvalidResponse)
}
