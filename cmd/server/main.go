package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/oksbwn/finsight/internal/config"
	"github.com/oksbwn/finsight/internal/ingest"
	"github.com/oksbwn/finsight/internal/logger"
	"github.com/oksbwn/finsight/internal/server"
	"github.com/oksbwn/finsight/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info")
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.LogLevel)

	ctx := context.Background()

	var st store.Store
	if cfg.Local() {
		log.Info().Msg("using in-memory store for local development")
		st = store.NewMemoryStore()
	} else {
		client, err := firestore.NewClient(ctx, cfg.GoogleCloudProject)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create firestore client")
		}
		st = store.NewFirestoreStore(client)
	}
	defer st.Close()

	// Tenant-curated aliases extend the built-in merchant table.
	var extra []ingest.Alias
	if aliases, err := st.ListMerchantAliases(ctx, "default"); err != nil {
		log.Warn().Err(err).Msg("failed to load merchant aliases, continuing with built-ins")
	} else {
		for _, alias := range aliases {
			extra = append(extra, alias.Alias)
		}
	}

	var ai *ingest.AIExtractor
	if cfg.GeminiAPIKey != "" {
		provider := ingest.NewGeminiProvider(cfg.GeminiAPIKey).WithModel(cfg.GeminiModel)
		ai = ingest.NewAIExtractor(provider, cfg.MessageTimeout, 24*time.Hour)
		log.Info().Str("provider", provider.Name()).Msg("ai extraction enabled")
	} else {
		log.Info().Msg("GEMINI_API_KEY not set, ai extraction disabled")
	}

	pipeline := ingest.NewPipeline(
		ingest.DefaultRegistry(),
		ingest.NewRuleEngine(st),
		ai,
		ingest.NewNormalizer(extra...),
		st,
		st,
		ingest.Options{
			IdempotencyWindow: cfg.IdempotencyWindow,
			CrossSourceWindow: cfg.CrossSourceWindow,
			MessageTimeout:    cfg.MessageTimeout,
		},
	)
	defer pipeline.Stop()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.New(pipeline, st, log, cfg.AllowedOrigins).Handler(),
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting ingestion server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
