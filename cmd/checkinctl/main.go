// Package main - административная утилита движка геймификации.
//
// Подкоманды:
//
//	seed         загрузить каталог бейджей из YAML
//	link         привязать email к пользователю
//	event        создать или обновить событие
//	profile      показать профиль пользователя
//	badges       показать заработанные бейджи
//	achievements показать последние достижения
//	progress     показать прогресс по бейджам
//	leaderboard  показать лидерборд периода
//	rank         показать позицию пользователя
//	enqueue      поставить триггер в очередь
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sabiut/qr-checkin-system-sub000/config"
	"github.com/sabiut/qr-checkin-system-sub000/internal/application/query"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/leaderboard"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/bootstrap"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/persistence/postgres"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/persistence/redis"
	"github.com/sabiut/qr-checkin-system-sub000/internal/interface/queue"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

const usage = `usage: checkinctl <command> [flags]

commands:
  seed -file badges.yaml
  link -user ID -email ADDRESS
  event -payload '{"id":"...","name":"...","date":"2024-05-01"}'
  profile -user ID
  badges -user ID
  achievements -user ID [-limit N]
  progress -user ID
  leaderboard [-period all_time] [-limit N] [-user ID]
  rank -user ID [-period all_time]
  enqueue -kind check_in|feedback|connection -payload '{...}'
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "checkinctl: %v\n", err)
		os.Exit(1)
	}
}

// staticCatalog serves a catalog loaded once for the lifetime of a command.
type staticCatalog struct{ c *badge.Catalog }

func (s staticCatalog) Catalog() *badge.Catalog { return s.c }

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := bootstrap.Logger(cfg).With(logger.Operation(cmd))
	defer func() { _ = log.Sync() }()

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	user := fs.String("user", "", "user id")
	limit := fs.Int("limit", 0, "max rows")
	period := fs.String("period", "all_time", "daily, weekly, monthly, yearly or all_time")
	file := fs.String("file", "configs/badges.yaml", "badge catalog YAML")
	kind := fs.String("kind", "", "trigger kind")
	payload := fs.String("payload", "", "trigger or event JSON")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd == "enqueue" {
		return enqueue(ctx, cfg, log, *kind, *payload)
	}

	conn, err := bootstrap.Postgres(ctx, cfg.Database, cmd == "seed", log)
	if err != nil {
		return err
	}
	defer conn.Close()

	badges := postgres.NewBadgeRepository(conn)
	catalog, err := loadCatalog(ctx, badges, log)
	if err != nil {
		return err
	}

	var result any
	switch cmd {
	case "seed":
		result, err = seed(ctx, badges, *file, log)

	case "link":
		if *user == "" || *email == "" {
			return errors.New("-user and -email are required")
		}
		err = postgres.NewAccountRepository(conn).RegisterAccount(ctx, *user, *email)
		result = map[string]string{"user_id": *user, "email": *email}

	case "event":
		result, err = upsertEvent(ctx, postgres.NewEventRepository(conn), *payload)

	case "profile":
		result, err = query.NewGetProfileHandler(postgres.NewProfileRepository(conn)).
			Handle(ctx, query.GetProfileQuery{UserID: *user})

	case "badges":
		result, err = query.NewGetBadgesHandler(badges, catalog).
			Handle(ctx, query.GetBadgesQuery{UserID: *user})

	case "achievements":
		result, err = query.NewGetAchievementsHandler(postgres.NewAchievementRepository(conn), cfg.Engine.AchievementsQueryLimit).
			Handle(ctx, query.GetAchievementsQuery{UserID: *user, Limit: *limit})

	case "progress":
		result, err = query.NewGetBadgeProgressHandler(
			postgres.NewProfileRepository(conn), badges, badges, catalog, cfg.Engine.Location, nil,
		).Handle(ctx, query.GetBadgeProgressQuery{UserID: *user})

	case "leaderboard", "rank":
		boardCache, closeCache := leaderboardCache(ctx, cfg, log)
		defer closeCache()
		boards := postgres.NewLeaderboardRepository(conn)
		loader := query.NewBoardLoader(leaderboard.NewService(boards, cfg.Engine.Location), boardCache, nil, log, nil).
			WithSnapshots(boards)
		if cmd == "rank" {
			result, err = query.NewGetUserRankHandler(loader).
				Handle(ctx, query.GetUserRankQuery{UserID: *user, Period: *period})
			break
		}
		result, err = query.NewGetLeaderboardHandler(loader, cfg.Engine.LeaderboardLimit).
			Handle(ctx, query.GetLeaderboardQuery{Period: *period, Limit: *limit, UserID: *user})

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func loadCatalog(ctx context.Context, repo badge.CatalogRepository, log *logger.Logger) (staticCatalog, error) {
	records, err := repo.ListRecords(ctx)
	if err != nil {
		return staticCatalog{}, fmt.Errorf("load badge catalog: %w", err)
	}
	c, invalid := badge.BuildCatalog(records)
	for _, bad := range invalid {
		log.Warn("badge definition skipped", logger.BadgeID(bad.ID), logger.Err(bad.Err))
	}
	return staticCatalog{c: c}, nil
}

// leaderboardCache opens the board cache when Redis is configured. A Redis
// outage only costs the cache, so connection errors are logged.
func leaderboardCache(ctx context.Context, cfg *config.Config, log *logger.Logger) (leaderboard.Cache, func()) {
	if cfg.Redis.Disabled || !cfg.Features.IsEnabled(config.FeatureLeaderboardCache) {
		return nil, func() {}
	}
	cache, err := redis.NewCache(ctx, bootstrap.RedisConfig(cfg.Redis))
	if err != nil {
		log.Warn("leaderboard cache unavailable", logger.Err(err))
		return nil, func() {}
	}
	return redis.NewLeaderboardCache(cache, cfg.Engine.LeaderboardCacheTTL), func() { _ = cache.Close() }
}

// seedResult reports what a seed run stored.
type seedResult struct {
	Upserted int      `json:"upserted"`
	Skipped  []string `json:"skipped"`
}

// seed validates every record of the file and upserts the valid ones.
func seed(ctx context.Context, repo badge.CatalogRepository, path string, log *logger.Logger) (*seedResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := badge.LoadRecordsYAML(f)
	if err != nil {
		return nil, err
	}

	catalog, invalid := badge.BuildCatalog(records)
	res := &seedResult{Skipped: []string{}}
	for _, bad := range invalid {
		res.Skipped = append(res.Skipped, fmt.Sprintf("%s: %v", bad.ID, bad.Err))
		log.Warn("badge definition rejected", logger.BadgeID(bad.ID), logger.Err(bad.Err))
	}

	// Keep the first record per id that made it into the catalog.
	valid := make([]badge.Record, 0, catalog.Len())
	seen := make(map[string]bool, catalog.Len())
	for _, r := range records {
		def, ok := catalog.Get(r.ID)
		if !ok || seen[r.ID] || def.Name != r.Name {
			continue
		}
		seen[r.ID] = true
		valid = append(valid, r)
	}
	if err := repo.UpsertRecords(ctx, valid); err != nil {
		return nil, fmt.Errorf("upsert badges: %w", err)
	}
	res.Upserted = len(valid)
	return res, nil
}

func enqueue(ctx context.Context, cfg *config.Config, log *logger.Logger, kindName, payload string) error {
	if payload == "" {
		return errors.New("-payload is required")
	}
	kind, err := trigger.ParseKind(kindName)
	if err != nil {
		return err
	}

	cache, err := bootstrap.Redis(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer cache.Close()

	q := redis.NewTriggerQueue(cache, cfg.Queue.Name)
	producer := queue.NewProducer(q)
	switch kind {
	case trigger.KindCheckIn:
		var m queue.CheckInMessage
		if err = json.Unmarshal([]byte(payload), &m); err == nil {
			err = producer.EnqueueCheckIn(ctx, m)
		}
	case trigger.KindFeedback:
		var m queue.FeedbackMessage
		if err = json.Unmarshal([]byte(payload), &m); err == nil {
			err = producer.EnqueueFeedback(ctx, m)
		}
	default:
		var m queue.ConnectionMessage
		if err = json.Unmarshal([]byte(payload), &m); err == nil {
			err = producer.EnqueueConnection(ctx, m)
		}
	}
	if err != nil {
		return err
	}
	log.Info("trigger enqueued", logger.TriggerKind(kind.String()), logger.String("queue", q.Key()))
	return nil
}

// eventMessage is the operator-facing shape of a catalog event.
type eventMessage struct {
	ID               string     `json:"id" validate:"required"`
	Name             string     `json:"name" validate:"required"`
	Date             string     `json:"date" validate:"required"`
	StartAt          *time.Time `json:"start_at"`
	Tags             []string   `json:"tags"`
	IsVIP            bool       `json:"is_vip"`
	ConnectionPoints int        `json:"connection_points" validate:"gte=0"`
}

// upsertEvent stores one event of the catalog the dispatcher reads.
func upsertEvent(ctx context.Context, repo *postgres.EventRepository, payload string) (*trigger.Event, error) {
	var m eventMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if err := validator.New().Struct(m); err != nil {
		return nil, err
	}
	date, err := timeutil.ParseDate(m.Date)
	if err != nil {
		return nil, err
	}

	e := trigger.Event{
		ID:               m.ID,
		Name:             m.Name,
		Date:             date,
		StartAt:          m.StartAt,
		Tags:             m.Tags,
		IsVIP:            m.IsVIP,
		ConnectionPoints: m.ConnectionPoints,
	}
	if err := repo.UpsertEvent(ctx, e); err != nil {
		return nil, err
	}
	return &e, nil
}
