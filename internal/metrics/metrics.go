package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/pkg/sma_modbus"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wallbox2mqtt"

// Metrics owns a private registry. Sensor values and regulation results are
// fed from the actor event stream, modbus timings from the client hooks.
type Metrics struct {
	registry *prometheus.Registry

	modbusDuration *prometheus.HistogramVec
	modbusErrors   *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	writeFailures  prometheus.Counter
	excessPower    prometheus.Gauge
	currentLimit   prometheus.Gauge
	solarOnly      prometheus.Gauge
	sensors        *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		modbusDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "modbus",
			Name:      "request_duration_seconds",
			Help:      "Duration of modbus requests.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"device", "fn"}),
		modbusErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modbus",
			Name:      "request_errors_total",
			Help:      "Failed modbus requests.",
		}, []string{"device", "fn"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "regulation",
			Name:      "decisions_total",
			Help:      "Regulation cycles by action.",
		}, []string{"action"}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "regulation",
			Name:      "write_failures_total",
			Help:      "Current limit writes rejected by the wallbox.",
		}),
		excessPower: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "regulation",
			Name:      "excess_power_watts",
			Help:      "Excess power seen by the last regulation cycle.",
		}),
		currentLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "regulation",
			Name:      "current_limit_amperes",
			Help:      "Charging current limit after the last regulation cycle.",
		}),
		solarOnly: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "regulation",
			Name:      "solar_only",
			Help:      "1 when only excess solar power is used for charging.",
		}),
		sensors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_value",
			Help:      "Last value published for each sensor.",
		}, []string{"sensor"}),
	}
	m.registry.MustRegister(
		m.modbusDuration,
		m.modbusErrors,
		m.decisions,
		m.writeFailures,
		m.excessPower,
		m.currentLimit,
		m.solarOnly,
		m.sensors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ModbusInstrument records every modbus round trip.
func (m *Metrics) ModbusInstrument() sma_modbus.ModbusInstrument {
	return sma_modbus.ModbusInstrument{
		RecordTime: func(device, fnName string, readTime time.Duration, err error) {
			m.modbusDuration.WithLabelValues(device, fnName).Observe(readTime.Seconds())
			if err != nil {
				m.modbusErrors.WithLabelValues(device, fnName).Inc()
			}
		},
	}
}

func (m *Metrics) Subscribe(es *eventstream.EventStream) *eventstream.Subscription {
	return es.Subscribe(m.Observe)
}

func (m *Metrics) Observe(ev any) {
	switch msg := ev.(type) {
	case domain.ChargeControlTickEvent:
		m.observeTick(msg.Result)
	case domain.FloatSensorUpdateEvent:
		m.sensors.WithLabelValues(msg.Id).Set(msg.Value)
	case domain.SwitchSensorUpdateEvent:
		if msg.Id == domain.SWITCH_ID_SOLAR_ONLY_CHARGING {
			m.solarOnly.Set(bool2Float(msg.Value))
		}
	}
}

func (m *Metrics) observeTick(result domain.ChargeControlTickResult) {
	m.decisions.WithLabelValues(string(result.Action)).Inc()
	m.excessPower.Set(float64(result.ExcessPowerW))
	m.currentLimit.Set(float64(result.NewLimitA))
	if !result.Write && strings.HasPrefix(result.Reason, "write failed") {
		m.writeFailures.Inc()
	}
}

func bool2Float(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
