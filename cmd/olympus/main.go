package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"olympus/internal/agents"
	"olympus/internal/config"
	"olympus/internal/embedding"
	"olympus/internal/ingest"
	"olympus/internal/llm"
	"olympus/internal/logging"
	"olympus/internal/rerank"
	"olympus/internal/retrieval"
	"olympus/internal/search"
	"olympus/internal/server"
	"olympus/internal/session"
	"olympus/internal/steps"
	"olympus/internal/store"
	"olympus/internal/watcher"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dataDir    string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "olympus",
	Short: "olympus - local document search and question answering",
	Long: `olympus indexes your documents locally and answers questions about them.

Everything runs on your machine: extraction, summarization, embeddings,
hybrid retrieval, and the agent workflow that turns a question into an
answer. No document content ever leaves the host.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// serveCmd runs the HTTP server plus the filesystem watcher.
var serveCmd = &cobra.Command{
	Use:   "serve [directory]",
	Short: "Start the search service, optionally watching a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(args) == 1 && svc.cfg.Watcher.Enabled {
			w := watcher.New(svc.pipeline, svc.cfg.Watcher)
			go func() {
				if err := w.Run(ctx, args[0]); err != nil && ctx.Err() == nil {
					logger.Warn("watcher stopped", zap.Error(err))
				}
			}()
		}

		// Daily maintenance: expired feedback and old session turns.
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					retention := time.Duration(svc.cfg.Memory.FeedbackRetentionDays) * 24 * time.Hour
					if n, err := svc.store.CleanupOldFeedback(ctx, retention); err == nil && n > 0 {
						logger.Info("feedback cleanup", zap.Int64("removed", n))
					}
					if n, err := svc.store.PruneSessionHistory(ctx, retention); err == nil && n > 0 {
						logger.Info("session history prune", zap.Int64("removed", n))
					}
				}
			}
		}()

		logger.Info("serving", zap.String("addr", svc.cfg.Server.ListenAddr))
		return svc.server.Run(ctx)
	},
}

// indexCmd ingests a file or directory tree.
var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a file or directory into the local search database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		info, err := os.Stat(args[0])
		if err != nil {
			return err
		}

		if !info.IsDir() {
			result := svc.pipeline.ProcessFile(ctx, args[0])
			fmt.Printf("%s: %s\n", result.Filename, result.Status)
			if result.Error != "" {
				fmt.Printf("  %s\n", result.Error)
			}
			return nil
		}

		start := time.Now()
		results, err := svc.pipeline.ProcessDirectory(ctx, args[0], svc.cfg.Watcher.SupportedExtensions,
			func(done, total int, r ingest.Result) {
				fmt.Printf("[%d/%d] %s: %s\n", done, total, r.Filename, r.Status)
			})
		if err != nil {
			return err
		}

		counts := map[ingest.Status]int{}
		for _, r := range results {
			counts[r.Status]++
		}
		fmt.Printf("\nindexed %d, skipped %d, failed %d in %s\n",
			counts[ingest.StatusSuccess], counts[ingest.StatusSkipped],
			counts[ingest.StatusFailed], time.Since(start).Round(time.Millisecond))
		return nil
	},
}

// queryCmd runs a single query through the full workflow.
var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question against the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		query := ""
		for i, a := range args {
			if i > 0 {
				query += " "
			}
			query += a
		}

		resp := svc.zeus.ProcessQuery(ctx, agents.Request{
			UserID:    "cli",
			SessionID: "cli",
			Query:     query,
		})

		fmt.Println(resp.ResponseMessage)
		if len(resp.Results) > 0 {
			fmt.Println()
			for i, r := range resp.Results {
				fmt.Printf("%2d. %s (%.2f)\n", i+1, r.Filename, r.Score)
			}
		}
		fmt.Printf("\nintent=%s confidence=%.2f total=%.2fs\n",
			resp.Intent, resp.Confidence, resp.TotalTime)
		return nil
	},
}

// statusCmd prints index health.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index size and store capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService()
		if err != nil {
			return err
		}
		defer svc.Close()

		count, err := svc.store.CountDocuments(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("database:     %s\n", svc.store.Path())
		fmt.Printf("documents:    %d\n", count)
		fmt.Printf("vector index: %v\n", svc.store.VecEnabled())
		fmt.Printf("fts index:    %v\n", svc.store.FTSEnabled())
		return nil
	},
}

// service holds the wired runtime.
type service struct {
	cfg      *config.Config
	store    *store.LocalStore
	pipeline *ingest.Pipeline
	zeus     *agents.Zeus
	server   *server.Server
}

func (s *service) Close() {
	logging.CloseAll()
	if s.store != nil {
		_ = s.store.Close()
	}
}

// buildService wires config, store, models, retrieval, agents, and the
// HTTP surface into one runtime.
func buildService() (*service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logging.Initialize(cfg.DataDir, logging.Options{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DataDir, cfg.Embedding.Dimension)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, err
	}

	manager := llm.NewModelManager(cfg.LLM.BaseURL, cfg.LLM.ModelManagement)
	client := llm.NewOllamaClient(cfg.LLM, manager)

	engine := search.NewEngine(st, embedder, cfg.Search)
	encoder := rerank.NewLLMCrossEncoder(client, cfg.LLM.TextModel, cfg.Search.Rerank.MaxLength)
	decayWindow := time.Duration(cfg.Memory.FeedbackDecayDays) * 24 * time.Hour
	reranker := rerank.New(encoder, st, cfg.Search.Rerank, decayWindow)
	retriever := retrieval.New(engine, reranker, cfg.Search)

	failed := store.NewFailedLog(cfg.DataDir)
	pipeline := ingest.New(st, embedder, client, cfg.LLM.TextModel, cfg.LLM.VisionModel,
		cfg.Ingestion, failed, ingest.Options{
			Graph: st,
			PDF:   ingest.PDFReader{},
			Docx:  ingest.DocxReader{},
		})

	bus := steps.NewBus(cfg.Server.StepQueueSize)
	sessions := session.NewManager(cfg.Memory.SessionTTL, cfg.Memory.SessionTurns)

	zeus := agents.NewZeus(retriever, client, cfg.LLM.TextModel, cfg.Search, agents.ZeusOptions{
		Apollo:   agents.NewApollo(st, cfg.Search.GraphMaxHops, cfg.Search.GraphMaxExpansion),
		Odysseus: agents.NewOdysseus(client, cfg.LLM.TextModel),
		Daedalus: agents.NewDaedalus(client, cfg.LLM.TextModel),
		Sessions: sessions,
		Bus:      bus,
		Memory:   retrieval.NewTurnMemory(st),
	})

	srv := server.New(zeus, st, bus, pipeline, cfg.Server)

	return &service{cfg: cfg, store: st, pipeline: pipeline, zeus: zeus, server: srv}, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "olympus.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "data directory override")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	// Local .env keeps machine-specific endpoints out of the config file.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
