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

	"aptitude-ace/internal/app"
	"aptitude-ace/internal/attempts"
	"aptitude-ace/internal/domain"
	"aptitude-ace/internal/infra/memory"
	pgstore "aptitude-ace/internal/infra/postgres"
	pgmigrations "aptitude-ace/internal/infra/postgres/migrations"
	infraredis "aptitude-ace/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestPracticeSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seeded := seedQuestions(t, ctx, pgURL)
	if seeded != len(memory.DefaultQuestions()) {
		t.Fatalf("expected every bundled question seeded, got %d", seeded)
	}

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

	questions := infraredis.NewQuestionRepository(redisClient, pgstore.NewQuestionLoader(pool), 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	store := attempts.NewStore(infraredis.NewKVStore(redisClient))
	results := &flakyResults{err: errors.New("connection refused")}
	service := app.NewQuizService(sessions, questions, memory.NewDefaultQuestionLoader(), app.NewSubmitter(results, store), store)
	defer service.CloseAll()

	session, err := service.StartSession(ctx, app.StartRequest{Mode: domain.ModePractice, TopicID: "percentages", UserID: "u1"})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	snap := session.Snapshot()
	if snap.Fallback || snap.Total == 0 {
		t.Fatalf("expected questions from postgres, got %+v", snap)
	}

	for i := 0; i < snap.Total; i++ {
		q, ok := session.Current()
		if !ok {
			t.Fatalf("no current question at %d", i)
		}
		if _, err := session.Answer(q.CorrectAnswer); err != nil {
			t.Fatalf("answer: %v", err)
		}
		if _, err := session.Advance(); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}

	final := session.Snapshot()
	if final.Summary == nil || final.Summary.Percent != 100 {
		t.Fatalf("expected a perfect summary, got %+v", final.Summary)
	}
	if final.Submission == nil || !final.Submission.Queued {
		t.Fatalf("expected the result queued while the API is down, got %+v", final.Submission)
	}
	if stats := store.LoadStats(ctx, "percentages"); stats.Attempts != 1 || stats.LastScore != 100 {
		t.Fatalf("unexpected stats in redis %+v", stats)
	}
	if pending := store.PendingSubmissions(ctx); len(pending) != 1 {
		t.Fatalf("expected one pending entry in redis, got %d", len(pending))
	}

	results.setErr(nil)
	report, err := service.Drain(ctx)
	if err != nil || report.Delivered != 1 {
		t.Fatalf("drain: %+v, %v", report, err)
	}
	if pending := store.PendingSubmissions(ctx); len(pending) != 0 {
		t.Fatalf("expected empty outbox after drain, got %d", len(pending))
	}
}

type flakyResults struct {
	mu        sync.Mutex
	err       error
	delivered int
}

func (f *flakyResults) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *flakyResults) SubmitResult(context.Context, domain.Mode, domain.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered++
	return nil
}

func (f *flakyResults) UpdateTopicProgress(context.Context, string, domain.TopicProgress) error {
	return nil
}

func (f *flakyResults) UpdateStreak(context.Context, string) error    { return nil }
func (f *flakyResults) UnlockGrandTest(context.Context, string) error { return nil }
func (f *flakyResults) Profile(context.Context) (domain.Profile, error) {
	return domain.Profile{ID: "u1"}, nil
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "aptitude", "POSTGRES_PASSWORD": "aptitudepass", "POSTGRES_DB": "aptitude"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://aptitude:aptitudepass@%s:%s/aptitude?sslmode=disable", host, port.Port())
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

// seedQuestions runs the bun migrations and loads the bundled question bank.
func seedQuestions(t *testing.T, ctx context.Context, dsn string) int {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	n, err := pgstore.SeedQuestions(ctx, db, memory.DefaultQuestions())
	if err != nil {
		t.Fatalf("seed questions: %v", err)
	}
	return n
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
