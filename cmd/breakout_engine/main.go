package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"breakout_trading/internal/config"
	"breakout_trading/internal/dashboard"
	"breakout_trading/internal/engine"
	"breakout_trading/internal/logger"
	"breakout_trading/internal/market"
	"breakout_trading/internal/storage"
)

const logFile = "engine.log"

func main() {
	cfg := config.Load()
	logger.Setup(logFile, cfg.MaxLogSizeMB, cfg.MaxLogBackups)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := market.NewAlpacaProvider()
	if clock, err := provider.GetClock(); err != nil {
		log.Printf("WARN: market clock unavailable: %v", err)
	} else if clock.IsOpen {
		log.Printf("Market is open, next close %s", clock.NextClose.In(config.MarketLoc).Format("15:04 MST"))
	} else {
		log.Printf("Market is closed, next open %s", clock.NextOpen.In(config.MarketLoc).Format("Mon 15:04 MST"))
	}

	store := &storage.Store{Path: cfg.StateFile}
	eng := engine.New(cfg, provider, store, dashboard.LogSink{})

	// Restore the last snapshot before anything talks to the broker; the
	// first reconciliation inside Run repairs whatever drifted while down.
	state, err := store.Load()
	if err != nil {
		log.Printf("WARN: could not load state snapshot, starting fresh: %v", err)
	}
	eng.Restore(state)

	streamer := market.NewAlpacaStreamer(eng.OnQuote, eng.OnTrade, eng.OnStatus)
	eng.AttachStreamer(streamer)
	if err := streamer.Connect(ctx); err != nil {
		log.Printf("ERROR: stream connect: %v", err)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			log.Printf("WARN: metrics server stopped: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Println("Signal received, shutting down...")
		cancel()
	}()

	log.Printf("Breakout engine starting: scan=%ds reconcile=%ds order_poll=%ds",
		cfg.ScanIntervalSec, cfg.ReconcileIntervalSec, cfg.OrderPollIntervalSec)

	// Blocks until ctx is canceled; writes the final snapshot on the way out.
	eng.Run(ctx)
}
