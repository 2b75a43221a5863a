package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/wallbox2mqtt/internal/adapter/actor"
	"github.com/berfenger/wallbox2mqtt/internal/config"
	"github.com/berfenger/wallbox2mqtt/internal/core/actor"
	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
	"github.com/berfenger/wallbox2mqtt/internal/core/store"
	"github.com/berfenger/wallbox2mqtt/internal/metrics"
	"github.com/berfenger/wallbox2mqtt/internal/server"
	"github.com/berfenger/wallbox2mqtt/internal/util/actorutil"
	"github.com/berfenger/wallbox2mqtt/pkg/sma_modbus"
	"github.com/berfenger/wallbox2mqtt/pkg/speedwire"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/benbjohnson/clock"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	rootCtx := as.Root

	signalStore := store.NewSignalStore(clock.New(), cfg.Regulation.SolarOnlyDefault)
	eventStream := &eventstream.EventStream{}
	mtr := metrics.New()
	mtr.Subscribe(eventStream)

	providers, err := actorProviders(cfg, mtr, logger)
	if err != nil {
		logger.Error("could not create device clients", zap.Error(err))
		os.Exit(1)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, signalStore, eventStream, providers, logger)
	})
	pid, err := rootCtx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("could not spawn master actor", zap.Error(err))
		os.Exit(1)
	}

	apiServer := server.NewServer(*cfg, rootCtx, pid, signalStore, mtr.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully, press Ctrl+C again to force")
		stop()

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server error", zap.Error(err))
	}

	// children finish their current message, an in-flight wallbox write included
	if err := rootCtx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("master actor did not stop cleanly", zap.Error(err))
	}
	as.Shutdown()
	logger.Info("graceful shutdown complete")
}

func initConfig() (*config.Config, error) {

	// alias PORT => WALLBOX_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("WALLBOX_PORT", port)
	}

	v := viper.GetViper()
	config.SetDefaults(v)
	config.ConfigureEnv(v)

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)

			err = v.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	return config.FromViper(v)
}

func actorProviders(cfg *config.Config, mtr *metrics.Metrics, logger *zap.Logger) (actor.ActorProviders, error) {
	instruments := []sma_modbus.ModbusInstrument{
		mtr.ModbusInstrument(),
		sma_modbus.DebugLoggerInstrumentation(logger),
	}

	reader, err := sma_modbus.CreateSMAModbusReader(
		modbusDevice("tripower", cfg.SMA.Tripower),
		modbusDevice("sunny_island", cfg.SMA.SunnyIsland),
		cfg.SMATimeout(), instruments...)
	if err != nil {
		return actor.ActorProviders{}, err
	}

	wallbox, err := sma_modbus.CreateWallboxModbusClient(sma_modbus.Device{
		Name:   "wallbox",
		Host:   cfg.Wallbox.Host,
		Port:   cfg.Wallbox.Port,
		UnitId: uint8(cfg.Wallbox.UnitId),
	}, cfg.WallboxTimeout(), instruments...)
	if err != nil {
		return actor.ActorProviders{}, err
	}

	return actor.ActorProviders{
		Modbus: func() *adactor.ModbusActor {
			return adactor.NewModbusActor(reader, cfg.SMAReadTimeout(), logger)
		},
		Wallbox: func() *adactor.WallboxActor {
			return adactor.NewWallboxActor(wallbox, cfg.WallboxTimeout(), logger)
		},
		MQTT: func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewMQTTActor(cfg, es, logger)
		},
		Speedwire: func(target *pactor.PID) *adactor.SpeedwireActor {
			return adactor.NewSpeedwireActor(adactor.SpeedwireConfig{
				GridMeterIP:    cfg.Speedwire.GridMeterIP,
				EnergyMeterIP:  cfg.Speedwire.EnergyMeterIP,
				ReceiveTimeout: cfg.SpeedwireReceiveTimeout(),
			}, func() (*speedwire.Listener, error) {
				return speedwire.Listen(cfg.Speedwire.ListenAddress, cfg.Speedwire.MulticastGroup)
			}, target, logger)
		},
	}, nil
}

func modbusDevice(name string, device config.ModbusDeviceConfig) sma_modbus.Device {
	return sma_modbus.Device{
		Name:   name,
		Host:   device.Host,
		Port:   device.Port,
		UnitId: uint8(device.UnitId),
	}
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
