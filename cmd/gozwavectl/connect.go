package main

import (
	"fmt"
	"time"

	"github.com/nerrad567/gozwave/internal/config"
	"github.com/nerrad567/gozwave/internal/logging"
	"github.com/nerrad567/gozwave/zwave"
)

// openController loads configuration and opens a connected Controller, ready
// for commands. The caller must call the returned cleanup func.
func openController() (*zwave.Controller, *logging.Logger, func(), error) {
	log := logging.Default()

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)

	zwave.ResponseTimeout = cfg.ResponseTimeout()
	zwave.ReceiveTimeout = cfg.ReceiveTimeout()
	zwave.WatchdogPeriod = cfg.WatchdogPeriod()
	zwave.StageStallThreshold = cfg.StageStallThreshold()
	zwave.RetryAttempts = cfg.Tunables.RetryAttempts
	zwave.InitialQueueCapacity = cfg.Tunables.InitialQueueCap

	ctrl := zwave.NewController(zwave.WithLogger(log))

	if err := ctrl.Connect(cfg.Serial.Port); err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to %s: %w", cfg.Serial.Port, err)
	}

	cleanup := func() {
		log.Info("closing controller")
		if err := ctrl.Close(); err != nil {
			log.Error("error closing controller", "error", err)
		}
	}

	return ctrl, log, cleanup, nil
}

// waitForReady polls Controller.IsConnected until ready or timeout elapses.
func waitForReady(ctrl *zwave.Controller, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctrl.IsConnected() {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return ctrl.IsConnected()
}
