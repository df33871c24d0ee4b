// Command drip runs the dollar-cost-averaging stock purchase bot.
//
// It subscribes to the Alpaca market-data stream for the configured tickers
// and places small notional market buys when the configured purchase triggers
// fire, re-arming them at every day-open reset.
//
// Required environment variables:
//
//	APCA_API_KEY_ID, APCA_API_SECRET_KEY
//
// Everything else (STOCK_LIST, DAILY_ENABLED_TRADES, ORDER_NOTIONAL, the
// schedule times) has working defaults; see config.Load.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/driftware/drip/config"
	"github.com/driftware/drip/internal/broker"
	"github.com/driftware/drip/internal/engine"
	"github.com/driftware/drip/internal/metrics"
	"github.com/driftware/drip/internal/schedule"
	"github.com/driftware/drip/internal/stream"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	brokerClient := broker.NewClient(cfg.APIKey, cfg.APISecret, cfg.Paper)
	guard := &engine.CloseGuard{}
	eng := engine.New(brokerClient, guard, logger, cfg.Symbols, cfg.Triggers, cfg.Notional, cfg.FailureCap)
	eng.Run(ctx)

	streamClient := stream.New(stream.URL(cfg.Feed), cfg.APIKey, cfg.APISecret,
		cfg.Symbols, eng.HandleQuote, logger)
	if err := streamClient.Connect(ctx); err != nil {
		// not fatal: the scheduled pre-open reconnect will retry
		logger.Warn("initial stream connect failed", zap.Error(err))
	}

	coordinator, err := schedule.New(schedule.Times{
		DayOpen:          cfg.Schedule.DayOpen,
		PreClose:         cfg.Schedule.PreClose,
		PostClose:        cfg.Schedule.PostClose,
		PreOpenReconnect: cfg.Schedule.PreOpenReconnect,
	}, loc, eng, brokerClient, streamClient, guard, logger)
	if err != nil {
		logger.Fatal("invalid schedule", zap.Error(err))
	}
	coordinator.Start()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("drip started",
		zap.Strings("symbols", cfg.Symbols),
		zap.String("notional", cfg.Notional.String()),
		zap.Bool("paper", cfg.Paper))

	<-ctx.Done()
	logger.Info("shutting down")

	coordinator.Stop()
	if err := streamClient.Disconnect(); err != nil {
		logger.Warn("stream disconnect failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(context.Background()); err != nil {
		logger.Warn("metrics server shutdown failed", zap.Error(err))
	}
	eng.Wait()
}
