// Package app assembles the vinyl shop bot from its parts: configuration,
// storage, payment, messaging, and the Telegram runtime.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	corebootstrap "github.com/m3rciful/vinylbot/core/bootstrap"
	"github.com/m3rciful/vinylbot/core/logger"
	tg "github.com/m3rciful/vinylbot/core/telegram"
	tghelpers "github.com/m3rciful/vinylbot/core/telegram/helpers"
	"github.com/m3rciful/vinylbot/core/telegram/router"
	"github.com/m3rciful/vinylbot/internal/bot"
	"github.com/m3rciful/vinylbot/internal/events"
	"github.com/m3rciful/vinylbot/internal/flow"
	"github.com/m3rciful/vinylbot/internal/payment"
	"github.com/m3rciful/vinylbot/internal/pricing"
	"github.com/m3rciful/vinylbot/internal/session"
	"github.com/m3rciful/vinylbot/internal/store"
)

const msgUnknown = "Send /start to order."

// App holds the assembled application.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	handlers *bot.Handlers

	memStore    *session.MemoryStore
	redisClient *redis.Client
	publisher   *events.Publisher
}

// Bootstrap initializes logging, storage, and the bot's collaborators.
func Bootstrap(cfg *Config) (*App, error) {
	res, err := corebootstrap.Run(corebootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, db: res.DB}
	if err := a.assemble(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) assemble() error {
	cfg := a.cfg

	prices, err := pricing.New(cfg.Shop.PriceTiers)
	if err != nil {
		return fmt.Errorf("app: price table: %w", err)
	}
	unit, err := prices.Price(1)
	if err != nil {
		return fmt.Errorf("app: unit price: %w", err)
	}

	ttl := time.Duration(cfg.Shop.SessionTTLMinutes) * time.Minute
	var sessions session.Store
	switch cfg.Shop.SessionBackend {
	case SessionBackendRedis:
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redisClient.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("app: redis ping: %w", err)
		}
		sessions = session.NewRedisStore(a.redisClient, ttl)
	default:
		a.memStore = session.NewMemoryStore(ttl)
		sessions = a.memStore
	}

	checkout, err := payment.NewClient(cfg.Payment)
	if err != nil {
		return err
	}

	orders := store.NewOrders(a.db)

	var publisher flow.Publisher
	if cfg.Events.URL != "" {
		p, err := events.NewPublisher(cfg.Events)
		if err != nil {
			return err
		}
		a.publisher = p
		publisher = p
	}

	machine, err := flow.New(flow.Config{
		Sessions: sessions,
		Prices:   prices,
		Checkout: checkout,
		Orders:   orderRepo{orders: orders},
		Events:   publisher,
		Product:  cfg.Shop.ProductName,
	})
	if err != nil {
		return err
	}

	a.handlers, err = bot.New(bot.Config{
		Flow:            machine,
		Orders:          orders,
		Product:         cfg.Shop.ProductName,
		PhotoURL:        cfg.Shop.PhotoURL,
		UnitAmountMinor: unit,
		AdminID:         cfg.Core.Telegram.AdminID,
	})
	return err
}

// TelegramRunOptions builds the bot runtime configuration.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	a.handlers.Register(reg)

	unknown := func(c tele.Context) error {
		return tghelpers.SendMD(c, msgUnknown)
	}

	return tg.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Routes: []tg.Route{
			router.TextRoute(a.handlers, reg, router.TextOptions{UnknownText: unknown}),
			router.CallbackRoute(reg, router.CallbackOptions{}),
		},
		OnStop: func(ctx context.Context, rt tg.Runtime) error {
			a.Close()
			return nil
		},
	}, nil
}

// Close releases everything Bootstrap opened. Safe to call more than once.
func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.L.Warn("publisher close failed",
				slog.String("event", "shutdown"),
				slog.String("err", err.Error()),
			)
		}
		a.publisher = nil
	}
	if a.memStore != nil {
		a.memStore.Close()
		a.memStore = nil
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
		a.redisClient = nil
	}
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
}

// orderRepo adapts the Postgres store to the flow machine's contract.
type orderRepo struct {
	orders *store.Orders
}

func (r orderRepo) Insert(ctx context.Context, o flow.Order) (int64, error) {
	return r.orders.Insert(ctx, store.Order{
		UserID:        o.UserID,
		Name:          o.Name,
		Phone:         o.Phone,
		Address:       o.Address,
		Quantity:      o.Quantity,
		AmountMinor:   o.AmountMinor,
		PaymentStatus: store.StatusPending,
		CheckoutToken: o.CheckoutToken,
	})
}
