package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/pkg/mppsolar"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSinkNumericPath(t *testing.T) {

	assert := assert.New(t)

	e := NewExporter()
	s := e.Sink(domain.SERVICE_KIND_INVERTER_CHARGER)

	assert.NoError(s.AddPath("/Ac/Out/L1/V", nil, false, "AC Output Voltage"))
	assert.NoError(s.AddPath("/Mode", domain.MODE_ON, true, "Mode"))
	assert.NoError(s.Register())

	assert.Equal(float64(domain.MODE_ON), testutil.ToFloat64(e.pathValue.WithLabelValues("vebus", "/Mode")))

	assert.NoError(s.Set("/Ac/Out/L1/V", 230.1))
	assert.Equal(230.1, testutil.ToFloat64(e.pathValue.WithLabelValues("vebus", "/Ac/Out/L1/V")))
	assert.Equal(2.0, testutil.ToFloat64(e.pathWrites.WithLabelValues("vebus")))

	assert.Error(s.Set("/Pv/V", 1.0))
}

func TestSinkTextPath(t *testing.T) {

	assert := assert.New(t)

	e := NewExporter()
	s := e.Sink(domain.SERVICE_KIND_SOLAR_CHARGER)

	assert.NoError(s.AddPath("/FirmwareVersion", "PI30", true, "Firmware Version"))
	assert.NoError(s.Register())
	assert.Equal(1, testutil.CollectAndCount(e.pathInfo))

	assert.NoError(s.Set("/FirmwareVersion", "PI41"))
	assert.Equal(1, testutil.CollectAndCount(e.pathInfo), "previous value is dropped")
	assert.Equal(1.0, testutil.ToFloat64(e.pathInfo.WithLabelValues("solarcharger", "/FirmwareVersion", "PI41")))
}

func TestCommandInstrument(t *testing.T) {

	assert := assert.New(t)

	e := NewExporter()
	inst := e.Instrument()

	inst.RecordTime(mppsolar.COMMAND_GENERAL_STATUS, 300*time.Millisecond, nil)
	inst.RecordTime(mppsolar.COMMAND_GENERAL_STATUS, 2*time.Second, errors.New("timeout"))

	assert.Equal(1.0, testutil.ToFloat64(e.commandTotal.WithLabelValues(mppsolar.COMMAND_GENERAL_STATUS, resultSuccess)))
	assert.Equal(1.0, testutil.ToFloat64(e.commandTotal.WithLabelValues(mppsolar.COMMAND_GENERAL_STATUS, resultError)))
	assert.Equal(1, testutil.CollectAndCount(e.commandDuration))
}

func TestHandler(t *testing.T) {

	assert := assert.New(t)

	e := NewExporter()
	s := e.Sink(domain.SERVICE_KIND_INVERTER_CHARGER)
	assert.NoError(s.AddPath("/Soc", nil, false, "State of Charge"))
	assert.NoError(s.Register())
	assert.NoError(s.Set("/Soc", 87.0))

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(http.StatusOK, rec.Code)
	assert.True(strings.Contains(rec.Body.String(), `mppsolar_path_value{path="/Soc",service="vebus"} 87`))
}
