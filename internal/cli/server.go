package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/app"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/config"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	amqpnotify "github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/infra/amqp"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/infra/memory"
	miniomedia "github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/infra/minio"
	natsrelay "github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/infra/nats"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/infra/postgres"
	redisstore "github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/infra/redis"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/realtime"
	transport "github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// server is the wired process: the core, its fan-out hub and every backend
// connection that has to be released on shutdown.
type server struct {
	service *app.SessionService
	hub     *realtime.Hub
	handler http.Handler

	redis    *redis.Client
	pool     *pgxpool.Pool
	db       *bun.DB
	nats     *nats.Conn
	relay    *natsrelay.Relay
	notifier *amqpnotify.Notifier
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	srv, err := buildServer(ctx, cfg, clockwork.NewRealClock())
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting live session server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildServer selects a backend per concern from cfg. Absent configuration
// selects the in-memory implementation.
func buildServer(ctx context.Context, cfg config.Config, clock clockwork.Clock) (*server, error) {
	srv := &server{}
	ok := false
	defer func() {
		if !ok {
			srv.Close()
		}
	}()

	if cfg.Redis.Addr != "" {
		srv.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := srv.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		srv.pool = pool
		srv.db = postgres.OpenDB(cfg.Postgres.URL)
	}

	deps := app.Dependencies{Clock: clock}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if srv.pool != nil {
		loader = postgres.NewQuizLoader(srv.pool)
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var registry realtime.Registry
	if srv.redis != nil {
		deps.Sessions = redisstore.NewSessionStore(srv.redis, sessionTTL)
		deps.Quizzes = redisstore.NewQuizRepository(srv.redis, loader, quizTTL)
		deps.Answers = redisstore.NewAnswerStore(srv.redis, sessionTTL)
		deps.Leaderboard = redisstore.NewLeaderboardStore(srv.redis, sessionTTL)
		deps.Locker = redisstore.NewSessionLocker(srv.redis,
			config.TTLDuration(cfg.Redis.LockLease, 10*time.Second),
			config.TTLDuration(cfg.Redis.LockWait, 5*time.Second))
		registry = redisstore.NewPresenceRegistry(srv.redis, config.TTLDuration(cfg.Redis.PresenceTTL, 2*time.Hour))
	} else {
		deps.Sessions = memory.NewSessionStore()
		deps.Quizzes = memory.NewQuizRepository(loader, quizTTL)
		deps.Answers = memory.NewAnswerStore()
		deps.Leaderboard = memory.NewLeaderboardStore()
		registry = realtime.NewMemoryRegistry()
	}

	if srv.db != nil {
		deps.Answers = postgres.NewAnswerStore(srv.db)
		deps.Reports = postgres.NewReportStore(srv.db)
		deps.Profiles = postgres.NewProfileProvider(srv.pool)
	} else {
		deps.Reports = memory.NewReportStore()
		deps.Profiles = memory.NewStaticProfiles(sampleProfiles()...)
	}

	media, err := mediaResolver(cfg)
	if err != nil {
		return nil, err
	}
	deps.Media = media

	if cfg.AMQP.URL != "" {
		notifier, err := amqpnotify.NewNotifier(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		srv.notifier = notifier
		deps.Notifier = notifier
	} else {
		deps.Notifier = memory.LogNotifier{}
	}

	srv.hub = realtime.NewHub(realtime.DefaultConfig(), registry, clock)
	if cfg.NATS.URL != "" {
		nc, err := natsrelay.Connect(cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		srv.nats = nc
		srv.relay = natsrelay.NewRelay(nc, cfg.NATS.SubjectPrefix)
		if err := srv.relay.Attach(srv.hub); err != nil {
			return nil, err
		}
		srv.hub.SetBus(srv.relay)
	}
	deps.Broadcaster = srv.hub

	srv.service = app.NewSessionService(deps, app.Options{
		JoinCodeLength:   cfg.Session.JoinCodeLength,
		JoinCodeAttempts: cfg.Session.JoinCodeAttempts,
		JoinBaseURL:      cfg.Session.JoinBaseURL,
		TickInterval:     config.TTLDuration(cfg.Timer.TickInterval, time.Second),
	})
	srv.hub.SetDisconnectHandler(srv.service.Disconnect)
	srv.handler = transport.NewRouter(srv.service, srv.hub, cfg.Server.CORSOrigins)

	log.Info().
		Bool("redis", srv.redis != nil).
		Bool("postgres", srv.pool != nil).
		Bool("nats", srv.relay != nil).
		Bool("amqp", srv.notifier != nil).
		Bool("minio", cfg.MinIO.Endpoint != "").
		Msg("backends selected")
	ok = true
	return srv, nil
}

func mediaResolver(cfg config.Config) (app.MediaResolver, error) {
	if cfg.MinIO.Endpoint != "" {
		return miniomedia.NewMediaResolver(miniomedia.Config{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKey,
			SecretAccessKey: cfg.MinIO.SecretKey,
			UseSSL:          cfg.MinIO.UseSSL,
			Region:          cfg.MinIO.Region,
			Bucket:          cfg.MinIO.Bucket,
			Expiry:          config.TTLDuration(cfg.MinIO.Expiry, time.Hour),
		})
	}
	if cfg.Media.BaseURL != "" {
		return memory.NewBaseURLResolver(cfg.Media.BaseURL), nil
	}
	return nil, nil
}

// Close releases every backend connection. It is safe on a partly built server.
func (s *server) Close() {
	if s.relay != nil {
		if err := s.relay.Close(); err != nil {
			log.Warn().Err(err).Msg("close room relay")
		}
	}
	if s.nats != nil {
		s.nats.Close()
	}
	if s.notifier != nil {
		s.notifier.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

// sampleQuizzes is the content served when no Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Items: []domain.Item{
				{
					ID:           "q1",
					Kind:         domain.ItemQuestion,
					QuestionKind: domain.MultipleChoice,
					Prompt:       "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
					TimerSeconds: 20,
					BasePoints:   100,
				},
				{
					ID:     "s1",
					Kind:   domain.ItemSlide,
					Prompt: "Next up: a few opinions",
				},
				{
					ID:            "q2",
					Kind:          domain.ItemQuestion,
					QuestionKind:  domain.TrueFalse,
					Prompt:        "Go has generics.",
					CorrectAnswer: "true",
					TimerSeconds:  15,
					BasePoints:    50,
				},
				{
					ID:           "q3",
					Kind:         domain.ItemQuestion,
					QuestionKind: domain.MultiSelect,
					Prompt:       "Which of these are prime?",
					Options: []domain.Option{
						{ID: "a", Text: "2", Correct: true},
						{ID: "b", Text: "4"},
						{ID: "c", Text: "7", Correct: true},
					},
					TimerSeconds: 30,
					BasePoints:   100,
				},
			},
		},
	}
}

func sampleProfiles() []domain.PlayerProfile {
	return []domain.PlayerProfile{
		{ID: "p1", Username: "alice"},
		{ID: "p2", Username: "bob"},
		{ID: "p3", Username: "carol"},
	}
}
