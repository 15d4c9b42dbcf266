package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/passivecaptcha/server/internal/httpx"
	"github.com/passivecaptcha/server/internal/metrics"
	"github.com/passivecaptcha/server/internal/ml"
	"github.com/passivecaptcha/server/internal/sink"
	"github.com/passivecaptcha/server/internal/verify"
	"github.com/passivecaptcha/server/pkg/config"
)

func buildSinks(cfg config.Config) []sink.Sink {
	var sinks []sink.Sink
	for _, name := range cfg.Outputs {
		switch name {
		case "log":
			sinks = append(sinks, sink.NewLogSink())
		case "postgres":
			sinks = append(sinks, sink.NewPGSink(cfg.PostgresDSN))
		case "kafka":
			sinks = append(sinks, sink.NewKafkaSinkFromEnv())
		default:
			log.Printf("unknown output %q, skipping", name)
		}
	}
	return sinks
}

func main() {
	cfg := config.Load()

	m := metrics.NewMetrics()
	metricsServer := metrics.NewServer(metrics.LoadConfig())
	metricsServer.Start()

	// start sinks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sinks := buildSinks(cfg)
	for _, s := range sinks {
		if err := s.Start(ctx); err != nil {
			log.Fatalf("sink %s failed to start: %v", s.Name(), err)
		}
	}

	svc := verify.NewService(cfg.ConfidenceThreshold)
	if artifact, err := ml.Load(cfg.ModelDir); err != nil {
		// Safe-default mode: every request passes with confidence 0.5 until
		// an artifact is trained and reloaded.
		log.Printf("no model loaded from %s (%v), serving safe defaults", cfg.ModelDir, err)
	} else if err := svc.SetArtifact(artifact); err != nil {
		log.Printf("model artifact rejected (%v), serving safe defaults", err)
	} else {
		m.ModelAccuracy.Set(artifact.Meta.Accuracy)
		log.Printf("model loaded: %s accuracy=%.4f trained=%s",
			artifact.Meta.Algorithm, artifact.Meta.Accuracy, artifact.Meta.LastTrained)
	}

	env := httpx.Env{
		Cfg:     cfg,
		Service: svc,
		Metrics: m,
		Emit: func(r sink.Record) {
			for _, s := range sinks {
				if err := s.Enqueue(r); err != nil {
					m.SinkErrors.WithLabelValues(s.Name()).Inc()
					log.Printf("sink %s enqueue: %v", s.Name(), err)
				}
			}
		},
	}

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: httpx.NewMux(env),
	}

	go func() {
		log.Printf("passivecaptcha listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	for _, s := range sinks {
		_ = s.Close()
	}
}
