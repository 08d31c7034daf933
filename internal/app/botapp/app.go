package botapp

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rfuntusov-a11y/gencontent/internal/config"
	tginfra "github.com/rfuntusov-a11y/gencontent/internal/infra/telegram"
	"github.com/rfuntusov-a11y/gencontent/internal/repo/memory"
	pgrepo "github.com/rfuntusov-a11y/gencontent/internal/repo/postgres"
	redrepo "github.com/rfuntusov-a11y/gencontent/internal/repo/redis"
	analyticsvc "github.com/rfuntusov-a11y/gencontent/internal/services/analytics"
	"github.com/rfuntusov-a11y/gencontent/internal/services/quota"
	ratesvc "github.com/rfuntusov-a11y/gencontent/internal/services/rate"
	"github.com/rfuntusov-a11y/gencontent/internal/services/referrals"
	"github.com/rfuntusov-a11y/gencontent/internal/services/stories"
)

type sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendHTML(ctx context.Context, chatID int64, text string) error
	SendShareKeyboard(ctx context.Context, chatID int64, text, botLink, channelLink string) error
}

type quotaEngine interface {
	Evaluate(ctx context.Context, userID int64) (quota.Decision, error)
	RecordUsage(ctx context.Context, userID int64) (int, error)
	Grant(ctx context.Context, userID int64, duration time.Duration, authorized bool) (time.Time, error)
	Revoke(ctx context.Context, userID int64, authorized bool) error
	IsActive(ctx context.Context, userID int64, at time.Time) (bool, error)
}

type referralTracker interface {
	Register(ctx context.Context, userID, referrerID int64, username string) (bool, error)
}

type storyGenerator interface {
	Synthesize(prompt string) (string, error)
}

type genLimiter interface {
	AllowGeneration(ctx context.Context, userID int64) (int64, bool, error)
}

type eventTracker interface {
	Track(ctx context.Context, userID int64, name string, props map[string]any) error
}

type userStore interface {
	FindByID(ctx context.Context, userID int64) (pgrepo.UserRecord, error)
}

type App struct {
	cfg    config.Config
	logger *zap.Logger

	postgres *pgxpool.Pool
	redis    *goredis.Client
	bot      *tginfra.Bot

	sender    sender
	users     userStore
	quota     quotaEngine
	referrals referralTracker
	stories   storyGenerator
	limiter   genLimiter
	analytics eventTracker

	now func() time.Time
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	app := &App{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}

	var quotaStore quota.Store
	var referralStore referrals.Store

	if strings.TrimSpace(cfg.Postgres.DSN) != "" {
		pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("init postgres for bot app: %w", err)
		}
		if err := pgrepo.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate bot schema: %w", err)
		}

		userRepo := pgrepo.NewUserRepo(pool)
		app.postgres = pool
		app.users = userRepo
		quotaStore = userRepo
		referralStore = userRepo
		app.analytics = analyticsvc.NewService(pgrepo.NewEventRepo(pool))
	} else {
		logger.Warn("POSTGRES_DSN is empty, using in-memory user store")
		userRepo := memory.NewUserRepo()
		app.users = userRepo
		quotaStore = userRepo
		referralStore = userRepo
		app.analytics = analyticsvc.NewService(nil)
	}

	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.redis = client
		app.limiter = ratesvc.NewLimiter(redrepo.NewRateRepo(client), cfg.Rate.GenPerMinute, cfg.Rate.GenPer10Sec)
	} else {
		logger.Warn("REDIS_ADDR is empty, generation flood limiter disabled")
	}

	app.quota = quota.NewService(quotaStore, quota.Config{FreeRequests: cfg.Quota.FreeRequests})
	app.referrals = referrals.NewService(referralStore)
	app.stories = stories.NewGenerator(rand.New(rand.NewSource(time.Now().UnixNano())))

	if strings.TrimSpace(cfg.Bot.Token) != "" {
		bot, err := tginfra.NewBot(cfg.Bot.Token)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init telegram bot: %w", err)
		}
		app.bot = bot
		app.sender = bot
	} else {
		logger.Warn("BOT_TOKEN is empty, telegram listener disabled")
	}

	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot app started")

	errCh := make(chan error, 2)

	go func() {
		errCh <- a.runHealthServer(ctx)
	}()

	if a.bot != nil {
		go func() {
			errCh <- a.bot.Listen(ctx, tginfra.Handlers{
				OnCommand: a.handleCommand,
				OnText:    a.handleText,
			})
		}()
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("bot app stopped")
			return nil
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			return err
		}
	}
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
}
