package mppsolar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// BridgeClient runs an external PI30 decoder once per command and reads its
// JSON output. Placeholders {port}, {baud}, {protocol} and {command} are
// expanded in the argument template.
type BridgeClient struct {
	port       string
	baud       int
	protocol   string
	program    string
	args       []string
	instrument []Instrument
}

var DefaultBridgeArgs = []string{"-p", "{port}", "-b", "{baud}", "-P", "{protocol}", "-c", "{command}", "-o", "json_units"}

func CreateBridgeClient(port string, baud int, protocol string, program string, args []string,
	logger *zap.Logger, instrumentation *Instrument) (*BridgeClient, error) {
	if port == "" {
		return nil, errors.New("serial port is required")
	}
	if program == "" {
		return nil, errors.New("bridge command is required")
	}
	if len(args) == 0 {
		args = DefaultBridgeArgs
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	var inst []Instrument
	if logInst := traceLoggerInstrumentation(logger.With(zap.String("port", port))); logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	return &BridgeClient{
		port:       port,
		baud:       baud,
		protocol:   protocol,
		program:    program,
		args:       args,
		instrument: inst,
	}, nil
}

func (c *BridgeClient) Open() error {
	if _, err := os.Stat(c.port); err != nil {
		return fmt.Errorf("serial port %s: %w", c.port, err)
	}
	if _, err := exec.LookPath(c.program); err != nil {
		return fmt.Errorf("bridge command %s: %w", c.program, err)
	}
	return nil
}

func (c *BridgeClient) Close() error {
	return nil
}

func (c *BridgeClient) SendCommand(ctx context.Context, command string) (resp Response, err error) {
	done := RecordTimer(command, c.instrument)
	defer func() { done(err) }()

	cmd := exec.CommandContext(ctx, c.program, c.expandArgs(command)...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s failed: %w: %s", command, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s failed: %w", command, err)
	}
	return ParseResponse(out)
}

func (c *BridgeClient) expandArgs(command string) []string {
	r := strings.NewReplacer(
		"{port}", c.port,
		"{baud}", strconv.Itoa(c.baud),
		"{protocol}", c.protocol,
		"{command}", command,
	)
	args := make([]string, len(c.args))
	for i := range c.args {
		args[i] = r.Replace(c.args[i])
	}
	return args
}

// ensure interface compliance
var _ Client = (*BridgeClient)(nil)
