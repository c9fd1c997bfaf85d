package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Entry point for the greeter kiosk
func main() {
	cfgMgr := NewConfigManager("")
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	cfg := cfgMgr.Get()
	logger := initLogging(cfg.LogLevel)
	journal := NewEventLogger(cfg.EventLog)

	servos, err := NewServoBank(cfg.Servos, logger)
	if err != nil {
		log.Fatalf("servo initialisation error: %v", err)
	}
	if err := servos.Setup(); err != nil {
		log.Fatalf("servo setup failed: %v", err)
	}
	eyes, err := OpenEyes(cfg.Display, logger)
	if err != nil {
		log.Fatalf("display initialisation error: %v", err)
	}
	sensors, err := NewSensorReader(cfg.Sensors, logger)
	if err != nil {
		log.Fatalf("sensor initialisation error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inbox := NewInbox(cfg.InboxSize)
	announcers := []Announcer{LogAnnouncer{Journal: journal}}

	var bridge *MQTTBridge
	if cfg.MQTT.Enabled {
		bridge = NewMQTTBridge(cfg.MQTT, inbox, logger)
		// The client keeps retrying in the background when the broker is down.
		if err := bridge.Connect(); err != nil {
			logger.Warn("mqtt unavailable", "err", err)
		}
		announcers = append(announcers, bridge)
	}

	var ctrl *Controller
	var hub *Hub
	if cfg.HTTP.Enabled {
		hub = NewHub(func() Status { return ctrl.Status() }, logger)
		announcers = append(announcers, hub)
	}
	ctrl = NewController(ControllerOptionsFrom(cfg, servos.Channels()), servos, eyes, announcers, logger)

	var srv *Server
	if cfg.HTTP.Enabled {
		go hub.Run(ctx)
		srv = NewServer(cfgMgr, ctrl, inbox, journal, hub, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("http server exited", "err", err)
			}
		}()
	}

	journal.Log("greeter started")
	logger.Info("greeter running", "tick", cfg.TickInterval, "cooldown", cfg.Cooldown)
	ctrl.Run(ctx, sensors, inbox.C(), cfg.TickInterval)

	logger.Info("shutting down")
	ctrl.Shutdown()
	if err := eyes.Close(); err != nil {
		logger.Warn("closing displays", "err", err)
	}
	if bridge != nil {
		bridge.Close()
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
		cancel()
	}
	journal.Log("greeter stopped")
}
