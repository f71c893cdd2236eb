package sink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFanoutAttemptsEverySink(t *testing.T) {

	assert := assert.New(t)

	first, second := NewRecorder(), NewRecorder()
	fanout := NewFanout(first, NewLogSink("vebus", zap.NewNop()), second)

	require.NoError(t, fanout.AddPath("/Ac/Out/L1/V", nil, false, "AC Voltage"))
	require.NoError(t, fanout.Register())

	boom := errors.New("boom")
	first.FailPath("/Ac/Out/L1/V", boom)

	err := fanout.Set("/Ac/Out/L1/V", 230.0)
	assert.ErrorIs(err, boom)

	v, _ := second.Value("/Ac/Out/L1/V")
	assert.Equal(230.0, v, "second sink still written")
	assert.True(first.Registered())
	assert.True(second.Registered())
}

func TestRecorderRejectsUnknownPath(t *testing.T) {

	r := NewRecorder()

	err := r.Set("/Pv/V", 120.0)

	assert.ErrorIs(t, err, ErrUnknownPath)
	assert.Empty(t, r.Writes())
}
