package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/core/events"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsFromEventStream(t *testing.T) {
	m := New()
	es := &eventstream.EventStream{}
	sub := m.Subscribe(es)
	defer es.Unsubscribe(sub)

	for _, ev := range events.TickResultToUpdateEvents(domain.ChargeControlTickResult{
		Action:         domain.ActionStart,
		ExcessPowerW:   3300,
		PreviousLimitA: 0,
		NewLimitA:      6,
		Write:          true,
	}) {
		es.Publish(ev)
	}
	es.Publish(domain.ChargeControlTickEvent{Result: domain.ChargeControlTickResult{
		Action:    domain.ActionIncrease,
		NewLimitA: 6,
		Reason:    "write failed: timeout",
	}})
	es.Publish(events.SolarOnlySwitchUpdateEvent(true))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues(string(domain.ActionStart))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues(string(domain.ActionIncrease))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writeFailures))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.currentLimit))
	assert.Equal(t, 3300.0, testutil.ToFloat64(m.sensors.WithLabelValues(domain.SENSOR_ID_EXCESS_POWER)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.solarOnly))
}

func TestModbusInstrument(t *testing.T) {
	m := New()
	instrument := m.ModbusInstrument()

	instrument.RecordTime("wallbox", "WriteRegister", 20*time.Millisecond, nil)
	instrument.RecordTime("wallbox", "WriteRegister", 30*time.Millisecond, errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.modbusErrors.WithLabelValues("wallbox", "WriteRegister")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.modbusDuration))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "wallbox2mqtt_modbus_request_duration_seconds_count{device=\"wallbox\",fn=\"WriteRegister\"} 2")
}
