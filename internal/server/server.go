package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/db"
	"github.com/jjudge-oj/accounts/internal/handlers"
	"github.com/jjudge-oj/accounts/internal/logging"
	"github.com/jjudge-oj/accounts/internal/mail"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/internal/storage"
	"github.com/jjudge-oj/accounts/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	notifier   *services.Notifier
	logger     logging.Logger
	closers    []func(context.Context) error
}

// New wires repositories, services and routes from cfg.
func New(ctx context.Context, cfg config.Config, logger logging.Logger) (srv *Server, err error) {
	s := &Server{logger: logger}
	defer func() {
		if err != nil {
			_ = s.closeResources(context.Background())
		}
	}()

	repo, err := s.openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	credentials, err := services.NewCredentialService(repo, cfg.Auth)
	if err != nil {
		return nil, err
	}

	avatarStore, err := s.openAvatarStore(ctx, cfg, repo)
	if err != nil {
		return nil, err
	}

	mailer, err := s.openMailer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.notifier = services.NewNotifier(mailer, cfg.Mail.From, cfg.Mail.SendTimeout, logger)

	userHandler := handlers.NewUserHandler(
		services.NewUserService(repo, credentials),
		credentials,
		services.NewAvatarService(repo, avatarStore),
		s.notifier,
		logger,
	)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userHandler)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) openRepository(ctx context.Context, cfg config.Config) (services.UserRepository, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s.addCloser(func(context.Context) error { return conn.Close() })
		return store.NewUserRepository(conn), nil
	case config.DriverMongo:
		client, database, err := db.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		s.addCloser(client.Disconnect)
		repo := store.NewMongoUserRepository(database.Collection(store.MongoUserCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return repo, nil
	case config.DriverMemory:
		s.logger.Warn(ctx, "using in-memory user repository; data is lost on exit")
		return store.NewMemoryUserRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

func (s *Server) openAvatarStore(ctx context.Context, cfg config.Config, repo services.UserRepository) (services.AvatarStore, error) {
	var backend storage.ObjectStorage
	switch cfg.Avatar.Backend {
	case config.AvatarBackendRecord:
		return services.NewRecordAvatarStore(repo), nil
	case config.AvatarBackendMinio:
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("open minio: %w", err)
		}
		backend = client
	case config.AvatarBackendGCS:
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("open gcs: %w", err)
		}
		backend = client
	default:
		return nil, fmt.Errorf("unsupported avatar backend %q", cfg.Avatar.Backend)
	}

	objects := storage.NewStorage(backend)
	s.addCloser(func(context.Context) error { return objects.Close() })
	if err := objects.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure avatar bucket: %w", err)
	}
	return services.NewBucketAvatarStore(objects), nil
}

func (s *Server) openMailer(ctx context.Context, cfg config.Config) (services.Mailer, error) {
	if cfg.Mail.Transport != config.MailTransportQueue {
		return mail.NewDirectSender(cfg.Mail, s.logger)
	}

	queue, err := mq.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.addCloser(func(context.Context) error { return queue.Close() })
	return mail.NewQueueMailer(queue, cfg.Mail.QueueChannel), nil
}

func (s *Server) addCloser(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for pending emails and releases
// every backend connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.notifier != nil {
		s.notifier.Wait()
	}
	return errors.Join(err, s.closeResources(ctx))
}

func (s *Server) closeResources(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
