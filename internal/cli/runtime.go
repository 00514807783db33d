package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"aptitude-ace/internal/api"
	"aptitude-ace/internal/app"
	"aptitude-ace/internal/attempts"
	"aptitude-ace/internal/auth"
	"aptitude-ace/internal/config"
	"aptitude-ace/internal/infra/memory"
	pgloader "aptitude-ace/internal/infra/postgres"
	redisinfra "aptitude-ace/internal/infra/redis"
	"aptitude-ace/internal/infra/sqlite"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// runtime is the wired object graph shared by the subcommands.
type runtime struct {
	cfg     config.Config
	store   *attempts.Store
	client  *api.Client
	auth    *auth.Manager
	service *app.QuizService
	closers []func()
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = redisClient.Close() })
	}

	kv, err := openKV(cfg, redisClient)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if c, ok := kv.(*sqlite.KVStore); ok {
		rt.closers = append(rt.closers, func() { _ = c.Close() })
	}
	rt.store = attempts.NewStore(kv)

	var mgr *auth.Manager
	timeout := config.TTLDuration(cfg.API.Timeout, 10*time.Second)
	rt.client = api.New(cfg.API.BaseURL, timeout, api.TokenFunc(func() string { return mgr.Token() }))

	var loader memory.QuestionLoader = rt.client
	if cfg.Questions.Source == "postgres" {
		if cfg.Postgres.URL == "" {
			rt.Close()
			return nil, fmt.Errorf("questions.source is postgres but postgres url not configured")
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		loader = pgloader.NewQuestionLoader(pool)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionSource
	var sessions app.SessionRepository
	if redisClient != nil {
		questions = redisinfra.NewQuestionRepository(redisClient, loader, questionTTL)
		sessions = redisinfra.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
	} else {
		questions = memory.NewQuestionRepository(loader, questionTTL)
		sessions = memory.NewSessionStore()
	}

	submitter := app.NewSubmitter(rt.client, rt.store)
	rt.service = app.NewQuizService(sessions, questions, memory.NewDefaultQuestionLoader(), submitter, rt.store,
		app.WithDailyCount(cfg.Questions.DailyCount))

	mgr = auth.NewManager(ctx, rt.client, rt.store,
		auth.WithRefreshAfter(config.TTLDuration(cfg.Auth.RefreshAfter, auth.DefaultRefreshAfter)),
		auth.WithLoginHook(func(ctx context.Context) {
			report, err := rt.service.Drain(ctx)
			if err != nil {
				log.Printf("drain after login: %v", err)
			}
			if report.Delivered > 0 || report.Dropped > 0 {
				log.Printf("outbox drained: delivered=%d dropped=%d remaining=%d", report.Delivered, report.Dropped, report.Remaining)
			}
		}),
	)
	rt.auth = mgr
	return rt, nil
}

func openKV(cfg config.Config, redisClient *redis.Client) (attempts.KV, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.NewKVStore(), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("storage driver redis requires redis.addr")
		}
		return redisinfra.NewKVStore(redisClient), nil
	case "sqlite", "":
		return sqlite.Open(cfg.Storage.Path)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// Close ends open sessions and releases connections, in reverse order.
func (rt *runtime) Close() {
	if rt.service != nil {
		rt.service.CloseAll()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
