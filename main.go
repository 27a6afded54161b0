package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jinzhu/copier"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/saveblush/reraw-timeline/core/cctx"
	"github.com/saveblush/reraw-timeline/core/config"
	"github.com/saveblush/reraw-timeline/core/sql"
	"github.com/saveblush/reraw-timeline/core/utils/limiter"
	"github.com/saveblush/reraw-timeline/core/utils/logger"
	"github.com/saveblush/reraw-timeline/pgk/cron"
	"github.com/saveblush/reraw-timeline/pgk/eventbus"
	"github.com/saveblush/reraw-timeline/pgk/eventstore"
	"github.com/saveblush/reraw-timeline/pgk/policies"
	"github.com/saveblush/reraw-timeline/pgk/relation"
	"github.com/saveblush/reraw-timeline/pgk/tab"
	"github.com/saveblush/reraw-timeline/pgk/timeline"
	"github.com/saveblush/reraw-timeline/stream"
)

func main() {
	flag.Parse()

	// Init logger
	logger.InitLogger()

	// Init configuration
	err := config.InitConfig()
	if err != nil {
		logger.Log.Panicf("init configuration error: %s", err)
	}

	// Init connection database
	cfdb := &sql.Configuration{
		Host:         config.CF.Database.TimelineSQL.Host,
		Port:         config.CF.Database.TimelineSQL.Port,
		Username:     config.CF.Database.TimelineSQL.Username,
		Password:     config.CF.Database.TimelineSQL.Password,
		DatabaseName: config.CF.Database.TimelineSQL.DatabaseName,
		MaxIdleConns: config.CF.Database.TimelineSQL.MaxIdleConns,
		MaxOpenConns: config.CF.Database.TimelineSQL.MaxOpenConns,
		MaxLifetime:  config.CF.Database.TimelineSQL.MaxLifetime,
	}
	session, err := sql.InitConnection(cfdb)
	if err != nil {
		logger.Log.Panicf("init connection db error: %s", err)
	}

	// Set to global variable database
	sql.Database = session.Database

	// Debug db
	if !config.CF.App.Environment.Production() {
		sql.DebugDatabase()
	}

	// Migration db
	_ = sql.Migration(sql.Database)

	// Relation graph
	identity := config.CF.Stream.Identity
	graph := relation.NewGraph()
	graph.Register(identity)
	relationService := relation.NewService(graph)
	if err := relationService.SyncAll(cctx.New()); err != nil {
		logger.Log.Warnf("initial relation sync error: %s", err)
	}

	// Event bus
	bus := eventbus.New(func(_ context.Context, scope string, err error) {
		logger.Log.Errorf("event bus [%s] error: %s", scope, err)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tabs
	tabs, err := startTabs(ctx, graph, identity, bus)
	if err != nil {
		logger.Log.Panicf("start tabs error: %s", err)
	}

	// Cron
	cron := cron.NewService(relationService)
	if err := cron.Start(); err != nil {
		logger.Log.Panicf("start cron error: %s", err)
	}

	// Stream
	st, err := stream.New(stream.Options{
		URL:              config.CF.Stream.URL,
		Identity:         identity,
		IdleTimeout:      config.CF.Stream.IdleTimeout,
		MaxMessageLength: config.CF.Stream.MaxMessageLength,
		Publisher:        bus,
		Store:            eventstore.NewService(),
		Relations:        relationService,
		Policies:         policies.NewService(),
	})
	if err != nil {
		logger.Log.Panicf("init stream error: %s", err)
	}

	// Metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := flag.String("addr", fmt.Sprintf(":%d", config.CF.App.Port), "http service address")
	server := &http.Server{
		Addr:    *addr,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := st.Run(gctx)
		endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err != nil {
			_ = bus.Abort(endCtx, err)
			return err
		}
		logger.Log.Info("Stream ended")

		return bus.Close(endCtx)
	})
	g.Go(func() error {
		logger.Log.Infof("App start on: %s", *addr)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownRelease()

		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil {
		logger.Log.Errorf("App stopped error: %s", err)
	}

	// Close tabs
	closeTabs(tabs)
	logger.Log.Info("Tabs closed")

	// Close cron
	cron.Stop()
	logger.Log.Info("Cron closed")

	// Close db
	_ = sql.CloseConnection(sql.Database)
	logger.Log.Info("Database connection closed")

	logger.Log.Info("Gracefully shutting down")
}

// startTabs start every configured tab, home only when none is configured
func startTabs(ctx context.Context, graph *relation.Graph, identity uint64, bus *eventbus.Bus) ([]*tab.Tab, error) {
	var opts timeline.Options
	if err := copier.Copy(&opts, &config.CF.Timeline); err != nil {
		return nil, err
	}

	tabConfigs := config.CF.Tabs
	if len(tabConfigs) == 0 {
		tabConfigs = []config.TabConfig{{Name: tab.PresetHome, Preset: tab.PresetHome}}
	}

	store := eventstore.NewService()
	backfill := limiter.NewKeyedRateLimiter(rate.Limit(config.CF.Backfill.Rate), config.CF.Backfill.Burst)

	var tabs []*tab.Tab
	for _, cf := range tabConfigs {
		expr, err := tab.Preset(cf.Preset, graph, identity)
		if err != nil {
			closeTabs(tabs)
			return nil, fmt.Errorf("tab %s: %w", cf.Name, err)
		}

		t, err := tab.New(tab.Options{
			Name:     cf.Name,
			Identity: identity,
			Expr:     expr,
			Store:    store,
			Limiter:  backfill,
			Timeline: opts,
		})
		if err != nil {
			closeTabs(tabs)
			return nil, fmt.Errorf("tab %s: %w", cf.Name, err)
		}

		if err := t.Start(ctx, bus); err != nil {
			closeTabs(tabs)
			return nil, fmt.Errorf("tab %s: %w", cf.Name, err)
		}
		tabs = append(tabs, t)
	}

	return tabs, nil
}

func closeTabs(tabs []*tab.Tab) {
	for _, t := range tabs {
		t.Close()
	}
}
