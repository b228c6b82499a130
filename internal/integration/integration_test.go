package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	pgmigrations "quiz-attempt-service/internal/infra/postgres/migrations"
	infraredis "quiz-attempt-service/internal/infra/redis"
)

func TestAttemptLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := migrateAndSeed(t, ctx, pgURL)
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	store := postgres.NewStore(db)
	quizRepo := infraredis.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute)
	rankingRepo := infraredis.NewRankingStore(redisClient, store, time.Minute)
	rankings := app.NewRankingService(store, quizRepo, rankingRepo, memory.NewFeedStore())
	attempts := app.NewAttemptService(store, quizRepo)
	results := app.NewResultService(store, quizRepo, rankings)

	started, err := attempts.Start(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Attempt.Number != 1 || len(started.Questions) != 3 || started.QuizTitle != "General knowledge" {
		t.Fatalf("unexpected start %+v", started)
	}

	for questionID, answer := range map[int64]string{1: "true", 2: "PARIS", 3: "B"} {
		if _, err := attempts.SubmitAnswer(ctx, "u1", 1, questionID, answer); err != nil {
			t.Fatalf("submit q%d: %v", questionID, err)
		}
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		duplicates int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := attempts.SubmitAnswer(ctx, "u1", 1, 1, "false")
			if errors.Is(err, domain.ErrAlreadyAnswered) {
				mu.Lock()
				duplicates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if duplicates != 5 {
		t.Fatalf("expected every duplicate rejected, got %d", duplicates)
	}

	finished, err := results.Finish(ctx, started.Attempt.ID, "u1")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if finished.Result.CorrectAnswers != 2 || finished.Result.TotalQuestions != 3 {
		t.Fatalf("unexpected result %+v", finished.Result)
	}
	if _, err := results.Finish(ctx, started.Attempt.ID, "u1"); !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("expected second finish rejected, got %v", err)
	}

	lb, err := rankings.Ranking(ctx, 1, "all")
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != "u1" || lb.Entries[0].Position != 1 {
		t.Fatalf("expected u1 ranked first, got %+v", lb.Entries)
	}
	if n, err := redisClient.Exists(ctx, "ranking:1").Result(); err != nil || n != 1 {
		t.Fatalf("expected ranking snapshot cached, got %d (%v)", n, err)
	}

	second, err := attempts.Start(ctx, "u1", 1)
	if err != nil || second.Attempt.Number != 2 {
		t.Fatalf("expected second attempt numbered 2, got %+v (%v)", second.Attempt, err)
	}
	_, _ = attempts.SubmitAnswer(ctx, "u1", 1, 1, "true")
	if err := attempts.Abandon(ctx, second.Attempt.ID, "u1"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if answers, _ := store.ListAnswers(ctx, second.Attempt.ID); len(answers) != 0 {
		t.Fatalf("expected abandoned answers removed, got %d", len(answers))
	}
	if answers, _ := store.ListAnswers(ctx, started.Attempt.ID); len(answers) != 3 {
		t.Fatalf("expected first attempt answers kept, got %d", len(answers))
	}

	third, _ := attempts.Start(ctx, "u1", 1)
	fourth, _ := attempts.Start(ctx, "u1", 1)
	if err := attempts.Abandon(ctx, third.Attempt.ID, "u1"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	fifth, err := attempts.Start(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("start after gap: %v", err)
	}
	if fourth.Attempt.Number != 3 || fifth.Attempt.Number != 4 {
		t.Fatalf("expected numbers 3 and 4 around the gap, got %d and %d", fourth.Attempt.Number, fifth.Attempt.Number)
	}
}

func TestConcurrentStartsGetDistinctNumbers(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := migrateAndSeed(t, ctx, pgURL)
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(db)
	quizRepo := memory.NewQuizRepository(postgres.NewQuizLoader(pool), time.Minute)
	attempts := app.NewAttemptService(store, quizRepo)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = attempts.Start(ctx, "u1", 1)
		}()
	}
	wg.Wait()

	list, err := store.ListAttempts(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	seen := make(map[int]bool)
	for _, a := range list {
		if seen[a.Number] {
			t.Fatalf("attempt number %d assigned twice", a.Number)
		}
		seen[a.Number] = true
	}
}

func TestConcurrentFinishesAllRanked(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := migrateAndSeed(t, ctx, pgURL)
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(db)
	quizRepo := memory.NewQuizRepository(postgres.NewQuizLoader(pool), time.Minute)
	rankings := app.NewRankingService(store, quizRepo, nil, nil)
	attempts := app.NewAttemptService(store, quizRepo)
	results := app.NewResultService(store, quizRepo, rankings)

	const users = 8
	attemptIDs := make([]string, users)
	for i := range attemptIDs {
		started, err := attempts.Start(ctx, fmt.Sprintf("u%d", i), 1)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		attemptIDs[i] = started.Attempt.ID
	}

	var wg sync.WaitGroup
	for i, attemptID := range attemptIDs {
		wg.Add(1)
		go func(userID, attemptID string) {
			defer wg.Done()
			if _, err := results.Finish(ctx, attemptID, userID); err != nil {
				t.Errorf("finish %s: %v", userID, err)
			}
		}(fmt.Sprintf("u%d", i), attemptID)
	}
	wg.Wait()

	lb, err := rankings.Ranking(ctx, 1, "all")
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(lb.Entries) != users {
		t.Fatalf("expected every finished user ranked, got %d of %d", len(lb.Entries), users)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	statements := []string{
		`INSERT INTO quizzes (id, title, time_limit_seconds) VALUES (1, 'General knowledge', 0)`,
		`INSERT INTO questions (id, quiz_id, text, type, correct_answer, difficulty, options) VALUES
			(1, 1, 'The sky is blue.', 'true_false', 'true', 'easy', NULL),
			(2, 1, 'Capital of France?', 'fill_blank', 'Paris|paris', 'easy', NULL),
			(3, 1, 'Which is a vowel?', 'one_select', 'A', 'medium', '[{"key":"A","text":"E"},{"key":"B","text":"K"}]')`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return db
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
