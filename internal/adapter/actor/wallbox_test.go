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

func spawnWallbox(t *testing.T, client sma_modbus.WallboxModbusClient) (*actor.RootContext, *actor.PID) {
	return spawnWallboxExpecting(t, client, 2*time.Second)
}

func spawnWallboxExpecting(t *testing.T, client sma_modbus.WallboxModbusClient, expected time.Duration) (*actor.RootContext, *actor.PID) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	t.Cleanup(as.Shutdown)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewWallboxActor(client, expected, logger) }))
	return as.Root, pid
}

func TestWallboxActorReads(t *testing.T) {

	client := sma_modbus.NewTestWallboxClient(3, 10)
	context, pid := spawnWallbox(t, client)

	result, err := context.RequestFuture(pid, domain.GetChargerStateRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	state := result.(domain.GetChargerStateResponse)
	assert.NoError(t, state.ResponseError)
	assert.Equal(t, domain.ConnectionCharging, state.State)

	result, err = context.RequestFuture(pid, domain.GetCurrentLimitRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	limit := result.(domain.GetCurrentLimitResponse)
	assert.NoError(t, limit.ResponseError)
	assert.Equal(t, 10, limit.LimitA)
}

func TestWallboxActorUnknownState(t *testing.T) {

	client := sma_modbus.NewTestWallboxClient(9, 0)
	context, pid := spawnWallbox(t, client)

	result, err := context.RequestFuture(pid, domain.GetChargerStateRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.Error(t, result.(domain.GetChargerStateResponse).ResponseError)
}

func TestWallboxActorWrite(t *testing.T) {

	client := sma_modbus.NewTestWallboxClient(2, 0)
	context, pid := spawnWallbox(t, client)

	result, err := context.RequestFuture(pid, domain.SetCurrentLimitRequest{LimitA: 6}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.SetCurrentLimitResponse)
	assert.NoError(t, resp.ResponseError)
	assert.Equal(t, 6, resp.LimitA)
	assert.Equal(t, []uint16{6}, client.Writes())

	client.SetFailWrites(true)
	result, err = context.RequestFuture(pid, domain.SetCurrentLimitRequest{LimitA: 8}, 5*time.Second).Result()
	require.NoError(t, err)
	resp = result.(domain.SetCurrentLimitResponse)
	assert.ErrorIs(t, resp.ResponseError, sma_modbus.ErrTestDeviceOffline)
	assert.Equal(t, 8, resp.LimitA)
	assert.Equal(t, []uint16{6}, client.Writes())

	client.SetFailWrites(false)
	result, err = context.RequestFuture(pid, domain.SetCurrentLimitRequest{LimitA: -1}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.Error(t, result.(domain.SetCurrentLimitResponse).ResponseError)
}

func TestWallboxActorOffline(t *testing.T) {

	client := sma_modbus.NewTestWallboxClient(2, 0)
	client.SetOffline(true)
	context, pid := spawnWallbox(t, client)

	result, err := context.RequestFuture(pid, domain.GetCurrentLimitRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.ErrorIs(t, result.(domain.GetCurrentLimitResponse).ResponseError, sma_modbus.ErrTestDeviceOffline)

	// the actor keeps serving after a failure
	client.SetOffline(false)
	result, err = context.RequestFuture(pid, domain.GetCurrentLimitRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.NoError(t, result.(domain.GetCurrentLimitResponse).ResponseError)
}

func TestWallboxActorSlowWriteStaysSerial(t *testing.T) {

	client := sma_modbus.NewTestWallboxClient(2, 0)
	client.SetDelay(400 * time.Millisecond)
	context, pid := spawnWallboxExpecting(t, client, 100*time.Millisecond)

	write := context.RequestFuture(pid, domain.SetCurrentLimitRequest{LimitA: 6}, 5*time.Second)
	read := context.RequestFuture(pid, domain.GetCurrentLimitRequest{}, 5*time.Second)

	// the write outlived the expected duration but it landed, so it is reported as done
	result, err := write.Result()
	require.NoError(t, err)
	assert.NoError(t, result.(domain.SetCurrentLimitResponse).ResponseError)

	// the read only starts once the write returned
	result, err = read.Result()
	require.NoError(t, err)
	assert.Equal(t, 6, result.(domain.GetCurrentLimitResponse).LimitA)

	assert.Equal(t, int32(1), client.MaxInFlight())
	assert.Equal(t, []uint16{6}, client.Writes())
}
