package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"serveturn/detector/internal/analysis"
	"serveturn/detector/internal/api"
	"serveturn/detector/internal/capture"
	"serveturn/detector/internal/config"
	"serveturn/detector/internal/feed"
	"serveturn/detector/internal/health"
	"serveturn/detector/internal/logging"
	"serveturn/detector/internal/store"
	"serveturn/detector/internal/stream"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := logging.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat); err != nil {
		logrus.WithError(err).Fatal("logging")
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("config")
	}
	profiles, err := cfg.Profiles()
	if err != nil {
		logrus.WithError(err).Fatal("age profiles")
	}

	st := store.New()
	hub := feed.NewHub()
	reg := feed.NewRegistry()

	det, err := stream.New(cfg.Stream(profiles), st, hub)
	if err != nil {
		logrus.WithError(err).Fatal("detector")
	}
	sc := det.Config()
	logrus.WithFields(logrus.Fields{
		"child_threshold_hz": sc.ChildThreshold,
		"window":             sc.Window,
		"min_child_speech":   sc.MinChildSpeech,
		"vad_aggressiveness": sc.Aggressiveness,
	}).Info("detector configured")

	an := analysis.DefaultConfig()
	an.SampleRate = cfg.Audio.SampleRate
	an.VADAggressiveness = cfg.Audio.VADAggressiveness
	an.Profiles = profiles
	if cfg.Detector.ChildAgeMonths != nil {
		an.AgeMonths = cfg.Detector.ChildAgeMonths
		an.ChildThreshold = 0
	}

	var mic *capture.Mic
	if cfg.Audio.CaptureSource == "mic" {
		mic = capture.NewMic(cfg.Audio.SampleRate, det)
		if err := mic.Start(); err != nil {
			logrus.WithError(err).Fatal("microphone")
		}
	}

	grpcSrv := health.NewGRPCServer()
	checks := []health.Check{health.GRPCCheck("127.0.0.1:"+cfg.Server.GRPCPort, health.Service)}
	if mic != nil {
		checks = append(checks, health.Check{Name: "microphone", Run: func(context.Context) error {
			if !mic.Running() {
				return capture.ErrStopped
			}
			return nil
		}})
	}

	h := api.NewHandlers(cfg, st, det, an, reg, checks...)
	audioSrv := &feed.AudioServer{
		Store:  st,
		Reg:    reg,
		Sink:   det,
		Secret: cfg.Ingest.TokenSecret,
		Skew:   time.Duration(cfg.Ingest.TokenSkewSecs) * time.Second,
	}

	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h))
	mux.HandleFunc("/ws/audio", audioSrv.HandleAudio)
	mux.HandleFunc("/ws/events", hub.HandleEvents)
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		logrus.WithError(err).Fatal("grpc listen")
	}
	go func() {
		if err := grpcSrv.Serve(ctx, lis); err != nil {
			logrus.WithError(err).Error("grpc health server")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		<-ctx.Done()
		logrus.Info("shutdown signal received; stopping server...")
		grpcSrv.SetServing(false)
		if mic != nil {
			mic.Stop()
		}
		if _, err := det.Stop(); err == nil {
			logrus.Info("open session stopped")
		}
		reg.CloseAll("server shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	grpcSrv.SetServing(true)
	logrus.WithFields(logrus.Fields{"addr": addr, "grpc_port": cfg.Server.GRPCPort}).Info("server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.WithError(err).Error("server error")
		os.Exit(1)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("request")
	})
}
