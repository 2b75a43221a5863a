package actor

import (
	"testing"
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/util/actorutil"
	"github.com/berfenger/wallbox2mqtt/pkg/sma_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readingsBySignal(readings []domain.SignalReading) map[domain.Signal]domain.SignalReading {
	m := make(map[domain.Signal]domain.SignalReading, len(readings))
	for _, r := range readings {
		m[r.Signal] = r
	}
	return m
}

func TestReadSignalsModbusActor(t *testing.T) {

	assert := assert.New(t)

	reader, err := sma_modbus.CreateTestSMAModbusReader()
	require.NoError(t, err)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(reader, 2*time.Second, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ReadSignalsRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.ReadSignalsResponse)

	assert.NoError(resp.ResponseError)
	readings := readingsBySignal(resp.Readings)
	assert.Len(readings, 6)
	assert.Equal(domain.ValidReading(4200), readings[domain.SignalPVPower].Reading)
	assert.Equal(domain.ValidReading(2100), readings[domain.SignalPVString1Power].Reading)
	assert.Equal(domain.ValidReading(1400), readings[domain.SignalPVString2Power].Reading)
	assert.Equal(domain.ValidReading(700), readings[domain.SignalPVString3Power].Reading)
	assert.Equal(domain.ValidReading(-1500), readings[domain.SignalBatteryPower].Reading)
	assert.Equal(domain.ValidReading(72), readings[domain.SignalBatterySoC].Reading)

	context.Stop(pid)
}

func TestReadSignalsModbusActorPartialFailure(t *testing.T) {

	reader := sma_modbus.NewTestSMAReader(map[string]int64{
		sma_modbus.REGISTER_TRIPOWER_TOTAL_POWER: 3000,
	})

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()
	context := as.Root

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(reader, 2*time.Second, logger) }))

	result, err := context.RequestFuture(pid, domain.ReadSignalsRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.ReadSignalsResponse)

	// NaN registers are not errors
	assert.NoError(t, resp.ResponseError)
	readings := readingsBySignal(resp.Readings)
	assert.True(t, readings[domain.SignalPVPower].Reading.Valid)
	assert.False(t, readings[domain.SignalBatterySoC].Reading.Valid)

	reader.SetOffline(true)
	result, err = context.RequestFuture(pid, domain.ReadSignalsRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp = result.(domain.ReadSignalsResponse)
	assert.ErrorIs(t, resp.ResponseError, sma_modbus.ErrTestDeviceOffline)
	for _, r := range resp.Readings {
		assert.False(t, r.Reading.Valid)
		assert.Error(t, r.Err)
	}
}

func TestModbusActorSerializesRequests(t *testing.T) {

	reader, err := sma_modbus.CreateTestSMAModbusReader()
	require.NoError(t, err)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()
	context := as.Root

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(reader, 2*time.Second, logger) }))

	var futures []*actor.Future
	for i := 0; i < 5; i++ {
		futures = append(futures, context.RequestFuture(pid, domain.ReadSignalsRequest{}, 5*time.Second))
	}
	health, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.True(t, health.(domain.ActorHealthResponse).Healthy)

	for _, f := range futures {
		result, err := f.Result()
		require.NoError(t, err)
		assert.Len(t, result.(domain.ReadSignalsResponse).Readings, 6)
	}
}
