package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	advisorx "github.com/pakornv/refund-returns-agent/agent/advisor"
	"github.com/pakornv/refund-returns-agent/agent/chatflow"
	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
	"github.com/pakornv/refund-returns-agent/agent/orchestrator"
	serverx "github.com/pakornv/refund-returns-agent/agent/server"
	statex "github.com/pakornv/refund-returns-agent/agent/state"
	storex "github.com/pakornv/refund-returns-agent/agent/store"
	toolx "github.com/pakornv/refund-returns-agent/agent/tool"
	configx "github.com/pakornv/refund-returns-agent/pkg/config"
	logx "github.com/pakornv/refund-returns-agent/pkg/logger"
	_ "github.com/pakornv/refund-returns-agent/pkg/logger/autoload"
)

type AppConfig struct {
	// DatabaseURL is optional. Without it the agent runs on in-memory stores,
	// which is enough for local development and the test suite.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SeedOrders  bool   `envconfig:"SEED_ORDERS" split_words:"true" default:"true"`
}

func main() {
	logger := logx.Component("main")

	appCfg := configx.MustNew[AppConfig]("")
	serverCfg := configx.MustNew[serverx.Config]("HTTP")
	advisorCfg := configx.MustNew[advisorx.Config]("ADVISOR")

	ctx := context.Background()

	var (
		orders      contractx.OrderStore
		effects     contractx.EffectStore
		toolLog     contractx.ToolCallLogger
		sessions    statex.Store
		healthCheck serverx.HealthChecker
	)

	if appCfg.DatabaseURL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(appCfg.DatabaseURL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			logger.Fatal().Err(err).Msg("database unreachable")
		}

		pg, err := storex.NewPostgresStore(db)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build order store")
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("order store migration failed")
		}
		if appCfg.SeedOrders {
			if err := pg.SeedOrders(ctx); err != nil {
				logger.Fatal().Err(err).Msg("order seeding failed")
			}
		}

		sessionStore, err := statex.NewPostgresStore(db)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build session store")
		}
		if err := sessionStore.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("session store migration failed")
		}

		orders, effects, toolLog, sessions = pg, pg, pg, sessionStore
		healthCheck = db.PingContext
		logger.Info().Msg("using postgres stores")
	} else {
		mem := storex.NewMemoryStore()
		seedMemoryOrders(mem)
		orders, effects, toolLog = mem, mem, mem
		sessions = statex.NewMemoryStore()
		healthCheck = func(context.Context) error { return nil }
		logger.Info().Msg("no DATABASE_URL set, using in-memory stores")
	}

	advisor := advisorx.New(*advisorCfg)

	tools, err := toolx.NewGateway(orders, effects, toolLog)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build tool gateway")
	}
	agent, err := orchestrator.New(tools, advisor)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build orchestrator")
	}
	flow, err := chatflow.New(sessions, tools, advisor)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build chat flow")
	}

	srv, err := serverx.New(*serverCfg, agent, flow, healthCheck)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	httpServer := &http.Server{
		Addr:         ":" + serverCfg.Port,
		Handler:      srv,
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
		IdleTimeout:  serverCfg.IdleTimeout,
	}

	go func() {
		logger.Info().Str("port", serverCfg.Port).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

// seedMemoryOrders mirrors the demo rows the postgres store seeds.
func seedMemoryOrders(mem *storex.MemoryStore) {
	now := time.Now().UTC()
	delivered := now.AddDate(0, 0, -5)
	mem.AddOrder("ORD-1001", "MER-001", "alice@example.com", "4242",
		"ITM-2001", "electronics", now.AddDate(0, 0, -9), &delivered, "120.00", "10.00", "delivered")
	mem.AddOrder("ORD-1002", "MER-001", "bob@example.com", "9911",
		"ITM-2002", "fashion", now.AddDate(0, 0, -2), nil, "55.00", "5.00", "shipped")
}
