package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/config"
	"github.com/berfenger/wallbox2mqtt/internal/core/store"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

type Server struct {
	port           uint
	httpLog        bool
	corsOrigins    []string
	requestTimeout time.Duration
	rootContext    *actor.RootContext
	masterActor    *actor.PID
	store          *store.SignalStore
	metrics        http.Handler
}

// NewServer builds the HTTP facade. metrics may be nil, then /metrics is not served.
func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID,
	signalStore *store.SignalStore, metrics http.Handler) *http.Server {
	NewServer := newServer(cfg, rootContext, masterActor, signalStore, metrics)

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}

func newServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID,
	signalStore *store.SignalStore, metrics http.Handler) *Server {
	return &Server{
		port:           cfg.Port,
		httpLog:        cfg.HttpLog,
		corsOrigins:    cfg.CORSOrigins,
		requestTimeout: 5 * time.Second,
		rootContext:    rootContext,
		masterActor:    masterActor,
		store:          signalStore,
		metrics:        metrics,
	}
}
