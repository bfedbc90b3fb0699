package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"ustawy/app/agent"
	"ustawy/app/api"
	"ustawy/app/chat"
	"ustawy/app/middleware"
	"ustawy/app/web"
	"ustawy/config"
	"ustawy/model"
	"ustawy/store"
)

// Backend holds the handles that are built once per process and shared by
// every session.
type Backend struct {
	Store    store.VectorStore
	Engine   *agent.Engine
	Settings *chat.SettingsStore
}

// Open connects to the vector store, makes sure the collection exists with
// the embedder's dimension and builds the engine.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	embedder, err := model.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	generator, err := model.NewGenerator(cfg.LLM)
	if err != nil {
		return nil, err
	}
	tok, err := model.NewTokenizer()
	if err != nil {
		slog.Warn("tiktoken unavailable, counting words instead", "error", err)
	}

	st, err := store.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := st.GetOrCreateCollection(ctx, cfg.Store.Collection, embedder.Dimension()); err != nil {
		st.Close()
		return nil, fmt.Errorf("prepare collection %q: %w", cfg.Store.Collection, err)
	}

	engine := agent.NewEngine(embedder, st, model.WithRetry(generator, cfg.LLM.Retries+1), tok, agent.Options{
		Collection:       cfg.Store.Collection,
		ContextTokens:    cfg.Engine.ContextTokens,
		SimilarityCutoff: cfg.Engine.SimilarityCutoff,
	})

	return &Backend{
		Store:    st,
		Engine:   engine,
		Settings: chat.NewSettingsStore(chat.SettingsFromConfig(cfg.Engine)),
	}, nil
}

func (b *Backend) Close() error {
	return b.Store.Close()
}

// NewApp registers every route on a fresh fiber app.
func NewApp(engine chat.Answerer, manager *chat.Manager, uploadDir string) *fiber.App {
	var (
		app            = fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler, BodyLimit: 64 << 20})
		checkHandler   = api.NewCheckHandler(manager)
		requestHandler = api.NewRequestHandler(engine, manager.Settings())
		sessionHandler = api.NewSessionHandler(manager)
		configHandler  = api.NewConfigHandler(manager.Settings())
		fileHandler    = api.NewFileHandler(uploadDir)
	)

	app.Use(middleware.RequestLog())
	app.Use(middleware.PlugStatic(web.Index))

	check := app.Group("/check")
	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1 := app.Group("/api/v1")
	apiv1.Post("/request", requestHandler.HandleRequest)
	apiv1.Get("/examples", requestHandler.HandleExamples)

	apiv1.Post("/sessions", sessionHandler.HandleCreate)
	apiv1.Get("/sessions/:id", sessionHandler.HandleGet)
	apiv1.Delete("/sessions/:id", sessionHandler.HandleDelete)
	apiv1.Post("/sessions/:id/messages", sessionHandler.HandleMessage)

	apiv1.Get("/config", configHandler.HandleGetConfig)
	apiv1.Patch("/config", configHandler.HandleSetConfig)

	apiv1.Post("/upload", fileHandler.HandleUpload)

	return app
}

type Server struct {
	listenAddr string
	uploadDir  string
	app        *fiber.App
	logger     *slog.Logger
}

func NewServer(cfg *config.Config, backend *Backend) *Server {
	manager := chat.NewManager(backend.Engine, backend.Settings)
	return &Server{
		listenAddr: cfg.Server.Addr,
		uploadDir:  cfg.Loader.SourceDir,
		app:        NewApp(backend.Engine, manager, cfg.Loader.SourceDir),
		logger:     slog.Default(),
	}
}

// Run listens until ctx is canceled, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "addr", s.listenAddr)
		errCh <- s.app.Listen(s.listenAddr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("error to start server: %w", err)
	case <-ctx.Done():
	}

	if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
