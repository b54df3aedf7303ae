package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"course-leaderboard-service/internal/app"
	"course-leaderboard-service/internal/config"
	"course-leaderboard-service/internal/domain"
	"course-leaderboard-service/internal/infra/memory"
	pgstore "course-leaderboard-service/internal/infra/postgres"
	redisstore "course-leaderboard-service/internal/infra/redis"
	transport "course-leaderboard-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the leaderboard server",
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
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var (
		results   app.ResultStore
		entries   app.LeaderboardStore
		attempts  app.AttemptProvider
		answers   app.AnswerProvider
		questions app.QuestionProvider
	)
	if pool != nil {
		results = pgstore.NewResultStore(pool)
		entries = pgstore.NewLeaderboardStore(pool)
		attempts = pgstore.NewAttemptProvider(pool)
		answers = pgstore.NewAnswerProvider(pool)
		questions = pgstore.NewQuestionProvider(pool)
	} else {
		fixtures := sampleFixtures()
		results = memory.NewResultStore()
		entries = memory.NewLeaderboardStore()
		attempts = memory.NewStaticAttemptProvider(fixtures.Attempts)
		answers = memory.NewStaticAnswerProvider(fixtures.Answers)
		questions = memory.NewStaticQuestionProvider(fixtures.Tests, fixtures.Questions)
	}

	var cache app.AnalyticsCache
	if redisClient != nil {
		cache = redisstore.NewAnalyticsCache(redisClient)
	} else {
		cache = memory.NewAnalyticsCache()
	}

	defaults := app.DefaultCacheTTLs()
	ttls := app.CacheTTLs{
		TestAnalytics:   config.TTLDuration(cfg.Cache.TestAnalyticsTTL, defaults.TestAnalytics),
		CourseStats:     config.TTLDuration(cfg.Cache.CourseStatsTTL, defaults.CourseStats),
		LeaderboardPage: config.TTLDuration(cfg.Cache.LeaderboardPageTTL, defaults.LeaderboardPage),
	}

	agg := app.NewAggregator(results, entries)
	service := app.NewLeaderboardService(attempts, answers, questions, results, entries, agg,
		memory.LogNotificationSink{}, cfg.Scoring.DefaultPassingPercent)
	analytics := app.NewAnalytics(results, entries, cache, ttls)

	handler := transport.NewHandler(service, analytics)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("GET /ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting leaderboard service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-stop:
			log.Println("shutting down server...")
		case <-gctx.Done():
			log.Println("context canceled, shutting down server...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sampleFixtures seeds a minimal demo dataset; swap for the Postgres-backed
// providers in production.
func sampleFixtures() memory.Fixtures {
	scope := domain.Scope{OrgID: "org-1"}
	pointsAwarded := 3.0
	return memory.Fixtures{
		Tests: map[string]domain.Test{
			"test-1": {ID: "test-1", CourseID: "course-1", PassingPercent: 60},
		},
		Questions: map[string][]domain.Question{
			"test-1": {
				{ID: "q1", TestID: "test-1", Points: 5},
				{ID: "q2", TestID: "test-1", Points: 5},
			},
		},
		Attempts: map[string]domain.Attempt{
			"attempt-1": {
				ID: "attempt-1", TestID: "test-1", CourseID: "course-1", UserID: "user-1",
				Status: domain.AttemptSubmitted, Scope: scope, SubmittedAt: time.Now(),
			},
			"attempt-2": {
				ID: "attempt-2", TestID: "test-1", CourseID: "course-1", UserID: "user-2",
				Status: domain.AttemptSubmitted, Scope: scope, SubmittedAt: time.Now(),
			},
		},
		Answers: map[string][]domain.Answer{
			"attempt-1": {
				{QuestionID: "q1", SelectedOptionID: "o2", SelectedCorrect: true},
				{QuestionID: "q2", SelectedOptionID: "o1", SelectedCorrect: false},
			},
			"attempt-2": {
				{QuestionID: "q1", SelectedOptionID: "o2", SelectedCorrect: true},
				{QuestionID: "q2", PointsAwarded: &pointsAwarded},
			},
		},
	}
}
