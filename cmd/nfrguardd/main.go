// Command nfrguardd runs the event-orchestration core as a daemon: it wires
// the bus, the model adapter, the retrieval corpus, and the seven agents,
// then serves until signalled.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/fogfish/opts"
	_ "github.com/joho/godotenv/autoload"
	"github.com/phsym/zeroslog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nfrguard/nfrguard"
	"github.com/nfrguard/nfrguard/pkg/slogx"
	"github.com/nfrguard/nfrguard/provider/openai"
	"github.com/nfrguard/nfrguard/retrieval"
	"github.com/nfrguard/nfrguard/transport"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelInfo}),
	))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := nfrguard.FromEnv()
	registry := prometheus.NewRegistry()

	sysOptions := []opts.Option[nfrguard.System]{
		nfrguard.WithConfig(cfg),
		nfrguard.WithBackend(openai.New(cfg.EmbeddingDimension)),
		nfrguard.WithMetricsRegistry(registry),
	}

	if busName := os.Getenv("NFRGUARD_EVENT_BUS"); busName != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("cannot load AWS configuration", slogx.Error(err))
			os.Exit(1)
		}
		sysOptions = append(sysOptions, nfrguard.WithRemote(transport.NewEventBridgeFromConfig(awsCfg, busName)))
		if arnPrefix := os.Getenv("NFRGUARD_SNS_ARN_PREFIX"); arnPrefix != "" {
			sysOptions = append(sysOptions, nfrguard.WithFallback(transport.NewSNSFromConfig(awsCfg, arnPrefix)))
		}
		slog.Info("remote transport enabled", slog.String("event_bus", busName))
	} else if natsURL := os.Getenv("NFRGUARD_NATS_URL"); natsURL != "" {
		remote, err := transport.Connect(natsURL, "nfrguard.")
		if err != nil {
			slog.Error("cannot connect to NATS", slogx.Error(err))
			os.Exit(1)
		}
		defer remote.Close()
		sysOptions = append(sysOptions, nfrguard.WithRemote(remote))
		slog.Info("NATS transport enabled", slog.String("url", natsURL))
	}

	sys, err := nfrguard.New(sysOptions...)
	if err != nil {
		slog.Error("cannot build system", slogx.Error(err))
		os.Exit(1)
	}

	if corpusPath := os.Getenv("NFRGUARD_CORPUS_PATH"); corpusPath != "" {
		if err := loadCorpus(ctx, sys, corpusPath); err != nil {
			slog.Error("corpus load failed", slogx.Error(err))
			os.Exit(1)
		}
	}

	if err := sys.Start(ctx); err != nil {
		slog.Error("cannot start system", slogx.Error(err))
		os.Exit(1)
	}
	slog.Info("nfrguard core running")

	metricsAddr := os.Getenv("NFRGUARD_METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9464"
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics endpoint failed", slogx.Error(err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer cancel()
	if err := sys.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", slogx.Error(err))
	}

	if dumpPath := os.Getenv("NFRGUARD_DEADLETTER_DUMP"); dumpPath != "" {
		dumpDeadLetters(sys, dumpPath)
	}
}

func loadCorpus(ctx context.Context, sys *nfrguard.System, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	docs, err := retrieval.ReadCorpus(f)
	if err != nil {
		return err
	}
	report, err := sys.Ingest(ctx, docs...)
	if err != nil {
		return err
	}
	slog.Info("corpus ingested",
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Int("failures", len(report.Failures)))
	return nil
}

func dumpDeadLetters(sys *nfrguard.System, path string) {
	f, err := os.Create(path)
	if err != nil {
		slog.Warn("cannot create dead-letter dump", slogx.Error(err))
		return
	}
	defer f.Close()
	if err := sys.Bus().WriteDeadLetters(f); err != nil {
		slog.Warn("dead-letter dump failed", slogx.Error(err))
	}
}
