package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/docsage/internal/config"
	"github.com/cloo-solutions/docsage/internal/database"
	"github.com/cloo-solutions/docsage/internal/dedup"
	"github.com/cloo-solutions/docsage/internal/logger"
	"github.com/cloo-solutions/docsage/internal/openai"
	"github.com/cloo-solutions/docsage/internal/repository"
	"github.com/cloo-solutions/docsage/internal/service"
	"github.com/cloo-solutions/docsage/internal/storage"
	"github.com/cloo-solutions/docsage/internal/telemetry"
)

// daemon holds the components shared by serve, ingest, ask and search.
type daemon struct {
	cfg       *config.Config
	log       *logger.Logger
	pool      *pgxpool.Pool
	documents *repository.DocumentRepository
	raw       *storage.RawPageArchive
	retriever *service.Retriever
	answers   *service.AnswerService
	ingest    *service.IngestService

	closers []func()
}

// loadConfig reads configuration and builds the logger and Sentry client.
func loadConfig() (*config.Config, *logger.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode, cfg.Debug)
	if err != nil {
		return nil, nil, nil, err
	}

	if !cfg.HasSentry() {
		return cfg, log, func() { log.Sync() }, nil
	}

	// 10% trace sampling in production, everything elsewhere
	sampleRate := 1.0
	if cfg.Environment == "production" {
		sampleRate = 0.1
	}
	flush, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	}, log)
	if err != nil {
		log.Warn("telemetry init failed, continuing without tracing", "error", err)
		flush = func() {}
	}

	return cfg, log, func() {
		flush()
		log.Sync()
	}, nil
}

// newDaemon connects to Postgres and the optional S3 archive and wires the
// answer and ingestion pipelines.
func newDaemon(ctx context.Context, cfg *config.Config, log *logger.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, log: log}

	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
		MinConns: cfg.DatabaseMinConns,
	})
	if err != nil {
		return nil, err
	}
	d.pool = pool
	d.closers = append(d.closers, pool.Close)
	d.documents = repository.NewDocumentRepository(pool)
	log.Info("connected to database")

	if cfg.HasS3() {
		archive, err := storage.NewRawPageArchive(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		d.raw = archive
		log.Info("raw page archive ready", "bucket", cfg.S3Bucket)
	}

	if !cfg.HasOpenAI() {
		log.Warn("OPENAI_API_KEY not set, embedding and generation calls will fail")
	}

	embedder := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})
	chat := openai.NewChatClient(openai.ChatConfig{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		Model:     cfg.ChatModel,
		MaxTokens: cfg.MaxTokens,
	})

	counter, err := service.NewTokenCounter(cfg.TokenCounter, cfg.ChatModel, log)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.retriever = service.NewRetrieverWithConfig(embedder, d.documents, service.NewContextBuilder(counter), service.RetrieverConfig{
		TopK:                cfg.TopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		AllowMockEmbedding:  cfg.AllowMockEmbedding,
	}, log)

	answerCfg := service.DefaultAnswerServiceConfig()
	answerCfg.ContextMaxTokens = cfg.ContextMaxTokens
	answerCfg.HybridSearch = cfg.HybridSearch
	answerCfg.Generate = service.GenerateOptions{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Retries:     cfg.GenerationRetries,
		Timeout:     cfg.GenerationTimeout,
	}

	prompts := service.NewPromptBuilder(service.PromptBuilderConfig{
		SupportURL:   cfg.SupportURL,
		CommunityURL: cfg.CommunityURL,
	})
	d.answers = service.NewAnswerService(d.retriever, prompts, service.NewGenerationClient(chat, log), answerCfg, log)

	var raw service.RawPageStore
	if d.raw != nil {
		raw = d.raw
	}
	d.ingest = service.NewIngestService(embedder, d.documents, raw, service.IngestConfig{
		MaxChunkChars: cfg.MaxChunkChars,
	}, log)

	return d, nil
}

// dedupStore picks Redis when configured, otherwise an in-process store whose
// expired keys are swept by the returned evictor.
func (d *daemon) dedupStore(ctx context.Context) (dedup.Store, dedup.Evictor, error) {
	if d.cfg.HasRedis() {
		store, err := dedup.NewRedisStore(ctx, d.cfg.RedisAddr, d.log)
		if err != nil {
			return nil, nil, err
		}
		d.closers = append(d.closers, func() { _ = store.Close() })
		d.log.Info("using redis dedup store", "addr", d.cfg.RedisAddr)
		return store, nil, nil
	}
	store := dedup.NewMemoryStore()
	return store, store, nil
}

func (d *daemon) deduplicator(store dedup.Store) *service.Deduplicator {
	window := d.cfg.DedupWindow
	if window <= 0 {
		window = 5 * time.Second
	}
	return service.NewDeduplicator(store, window, d.log)
}

// Close releases resources in reverse order of acquisition.
func (d *daemon) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// traced runs fn inside a Sentry transaction named after the command.
func traced(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, tx := telemetry.StartTransaction(ctx, name, telemetry.OpCLI)
	defer tx.End()

	if err := fn(ctx); err != nil {
		tx.SetError(err)
		return err
	}
	return nil
}
