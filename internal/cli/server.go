package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	"quiz-attempt-service/internal/infra/rabbitmq"
	infraredis "quiz-attempt-service/internal/infra/redis"
	transport "quiz-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz attempt server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	var store app.Store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = postgres.NewQuizLoader(pool)

		db := openDB(cfg.Postgres.URL)
		defer db.Close()
		store = postgres.NewStore(db)
	} else {
		log.Printf("postgres not configured, serving sample quizzes from memory")
	}

	quizTTL := cfg.QuizCacheTTL()
	var quizRepo app.QuizRepository
	var rankingRepo app.RankingRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
		rankingRepo = infraredis.NewRankingStore(redisClient, store, cfg.RankingCacheTTL())
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	opts := []app.Option{
		app.WithDeadlineGrace(config.TTLDuration(cfg.Quiz.DeadlineGrace, 5*time.Second)),
	}
	if cfg.AMQP.URL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, app.WithEvents(publisher))
	}

	rankings := app.NewRankingService(store, quizRepo, rankingRepo, memory.NewFeedStore(), opts...)
	attempts := app.NewAttemptService(store, quizRepo, opts...)
	results := app.NewResultService(store, quizRepo, rankings, opts...)
	handler := transport.NewHandler(attempts, results, rankings, cfg.Auth.UserHeader)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting quiz attempt service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sampleQuizzes is the catalog served when no database is configured.
func sampleQuizzes() map[int64]domain.Quiz {
	return map[int64]domain.Quiz{
		1: {
			ID:    1,
			Title: "General knowledge",
			Questions: []domain.Question{
				{ID: 1, QuizID: 1, Text: "Water boils at 100 degrees Celsius at sea level.", Type: domain.TrueFalse, CorrectAnswer: "true", Difficulty: "easy"},
				{ID: 2, QuizID: 1, Text: "The capital of France is ____.", Type: domain.FillBlank, CorrectAnswer: "Paris", Difficulty: "easy"},
				{ID: 3, QuizID: 1, Text: "Which planet is closest to the sun? A: Venus, B: Mercury, C: Mars", Type: domain.OneSelect, CorrectAnswer: "B", Difficulty: "medium"},
				{ID: 4, QuizID: 1, Text: "Which of these are prime numbers?", Type: domain.MultiSelect, CorrectAnswer: "A,C", Difficulty: "medium",
					Options: []domain.Option{{Key: "A", Text: "2"}, {Key: "B", Text: "4"}, {Key: "C", Text: "7"}, {Key: "D", Text: "9"}}},
			},
		},
		2: {
			ID:               2,
			Title:            "Speed maths",
			TimeLimitSeconds: 60,
			Questions: []domain.Question{
				{ID: 5, QuizID: 2, Text: "7 x 8 = ____", Type: domain.FillBlank, CorrectAnswer: "56", Difficulty: "easy"},
				{ID: 6, QuizID: 2, Text: "12 squared is 144.", Type: domain.TrueFalse, CorrectAnswer: "true", Difficulty: "easy"},
			},
		},
	}
}
