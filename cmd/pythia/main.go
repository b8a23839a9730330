package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/XavierBriggs/Pythia/adapters/apifootball"
	"github.com/XavierBriggs/Pythia/internal/config"
	"github.com/XavierBriggs/Pythia/internal/coordinator"
	"github.com/XavierBriggs/Pythia/internal/gateway"
	"github.com/XavierBriggs/Pythia/internal/lifecycle"
	"github.com/XavierBriggs/Pythia/internal/normalize"
	"github.com/XavierBriggs/Pythia/internal/predict"
	"github.com/XavierBriggs/Pythia/internal/quotecache"
	"github.com/XavierBriggs/Pythia/internal/registry"
	"github.com/XavierBriggs/Pythia/internal/store"
	"github.com/XavierBriggs/Pythia/internal/valuebet"
	"github.com/XavierBriggs/Pythia/pkg/contracts"
)

// One invocation is one bounded batch pass; overlapping scheduled runs
// are safe because every state transition is a conditional store write.
const runTimeout = 15 * time.Minute

func main() {
	stagesFlag := flag.String("stages", "collect,predict,publish,cleanup", "comma-separated pipeline stages to run")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load configuration")
	}

	stages, err := parseStages(*stagesFlag)
	if err != nil {
		log.WithError(err).Fatal("parse stages")
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	// A signal ends the batch early but leaves every fixture resumable
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn("signal received, cancelling batch")
		cancel()
	}()

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.WithError(err).Fatal("open store connection")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Fatal("store unreachable")
	}

	entityStore := store.NewPostgres(db)
	if err := entityStore.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("ensure store schema")
	}
	log.Info("connected to store")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	defer redisClient.Close()

	// The quote cache is an optimization; run without it if Redis is down
	var quotes coordinator.QuoteCache
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable, quote dedup disabled")
	} else {
		quotes = quotecache.NewCache(redisClient, cfg.Redis.QuoteTTL)
		log.Info("connected to redis")
	}

	feed := apifootball.NewClient(cfg.Feed.BaseURL, cfg.Feed.APIKey, cfg.Feed.Timeout)

	publisher := gateway.NewWordPress(gateway.Config{
		BaseURL:  cfg.Gateway.BaseURL,
		Username: cfg.Gateway.Username,
		Password: cfg.Gateway.AppPassword,
		Timeout:  cfg.Gateway.Timeout,
	}, log)

	policy := cfg.Retry.Policy()

	engine := predict.NewEngine([]contracts.Model{
		predict.NewPoissonModel(cfg.Engine.MaxGoals, cfg.Engine.MinFormMatches),
		predict.NewRatingModel(cfg.Engine.MinFormMatches),
	}, cfg.Engine.ModelWeights)

	detector := valuebet.NewDetector(cfg.Engine.MinEdge, cfg.Engine.MinConfidence, cfg.Engine.QuoteStaleness)

	windows := lifecycle.Windows{
		PublishLead:    cfg.Lifecycle.PublishLead,
		ExpireTrailing: cfg.Lifecycle.ExpireTrailing,
		MatchDuration:  cfg.Lifecycle.MatchDuration,
	}
	lifecycleScheduler := lifecycle.NewScheduler(entityStore, publisher, policy, windows, cfg.Lifecycle.Language, log)

	coord := coordinator.New(
		entityStore,
		feed, feed, feed,
		normalize.NewNormalizer([]string{"api_football"}),
		engine,
		detector,
		lifecycleScheduler,
		registry.NewLeagueRegistry(),
		quotes,
		policy,
		coordinator.Config{
			Workers:    cfg.Batch.Workers,
			LookAhead:  cfg.Batch.LookAhead,
			LookBehind: cfg.Batch.LookBehind,
		},
		log,
	)

	summary, err := coord.Run(ctx, stages, time.Now().UTC())
	if err != nil {
		log.WithError(err).Fatal("batch run aborted")
	}

	log.WithFields(logrus.Fields{
		"fixtures":   summary.Fixtures,
		"value_bets": summary.ValueBets,
		"failed":     summary.Failed,
	}).Info("batch run finished")
}

// parseStages validates the stage selection flag
func parseStages(raw string) ([]coordinator.Stage, error) {
	known := map[string]coordinator.Stage{
		"collect":  coordinator.StageCollect,
		"predict":  coordinator.StagePredict,
		"generate": coordinator.StagePredict, // legacy alias
		"publish":  coordinator.StagePublish,
		"cleanup":  coordinator.StageCleanup,
	}

	var stages []coordinator.Stage
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		stage, ok := known[part]
		if !ok {
			return nil, &unknownStageError{stage: part}
		}
		stages = append(stages, stage)
	}
	if len(stages) == 0 {
		stages = coordinator.AllStages()
	}
	return stages, nil
}

type unknownStageError struct {
	stage string
}

func (e *unknownStageError) Error() string {
	return "unknown stage: " + e.stage
}
