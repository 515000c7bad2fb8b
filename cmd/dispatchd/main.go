package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"battery-dispatch/internal/api"
	"battery-dispatch/internal/config"
	"battery-dispatch/internal/data"
	"battery-dispatch/internal/dispatch"
	"battery-dispatch/internal/history"
	"battery-dispatch/internal/model"
	"battery-dispatch/internal/mqtt"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one dispatch cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	log := setupLogger(cfg.Log)

	log.WithFields(logrus.Fields{
		"config":   *configPath,
		"zone":     cfg.Feed.Zone,
		"interval": cfg.Dispatch.Interval(),
		"once":     *once,
	}).Info("battery-dispatch starting")

	feed := data.NewSpotFeedClient(cfg.Feed.BaseURL, cfg.Feed.Zone, cfg.Feed.Timeout(), cfg.Feed.CacheTTL(), log)

	var mq *mqtt.Client
	if cfg.MQTT.Broker != "" {
		mq = mqtt.NewClient(mqtt.Config{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			TelemetryTopic: cfg.MQTT.TelemetryTopic,
		}, log)
	}

	var recorder dispatch.Recorder
	store, err := history.Open(cfg.History.DSN)
	if err != nil {
		log.WithError(err).Warn("history store unavailable, continuing without it")
	} else {
		defer store.Close()
		recorder = store
	}

	runner := dispatch.NewRunner(cfg, feed, sinkOrNil(mq), recorder, log)

	// Latest telemetry, updated by MQTT; the cycle ticker reads it.
	var sampleMu sync.RWMutex
	lastSample := model.TelemetrySample{SoC: 0.5}
	if mq != nil {
		mq.SetTelemetryHandler(func(s model.TelemetrySample) {
			sampleMu.Lock()
			lastSample = s
			sampleMu.Unlock()
		})
		if err := mq.Connect(); err != nil {
			log.WithError(err).Warn("mqtt unavailable, continuing without sink/telemetry")
		} else {
			defer mq.Disconnect()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCycle := func() {
		sampleMu.RLock()
		sample := lastSample
		sampleMu.RUnlock()
		if _, err := runner.RunCycle(ctx, sample); err != nil {
			log.WithError(err).Warn("cycle skipped")
		}
	}

	if *once {
		runCycle()
		return
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: api.NewRouter(runner, log, os.Getenv("API_ENV") == "production"),
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("starting status API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("status API stopped")
		}
	}()

	ticker := time.NewTicker(cfg.Dispatch.Interval())
	defer ticker.Stop()

	runCycle()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
			return
		case <-ticker.C:
			runCycle()
		}
	}
}

func sinkOrNil(mq *mqtt.Client) dispatch.ResultSink {
	if mq == nil {
		return nil
	}
	return mq
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
