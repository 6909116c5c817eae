package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/playmate/playmate/internal/auth"
	"github.com/playmate/playmate/internal/config"
	"github.com/playmate/playmate/internal/httpx"
	"github.com/playmate/playmate/internal/identity"
	"github.com/playmate/playmate/internal/ledger"
	"github.com/playmate/playmate/internal/middleware"
	"github.com/playmate/playmate/internal/notification"
	"github.com/playmate/playmate/internal/order"
	"github.com/playmate/playmate/internal/refund"
	"github.com/playmate/playmate/internal/storage"
	"github.com/playmate/playmate/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Memory backs every store when DB is nil. Setup creates one if unset.
	Memory *storage.Memory
	// AccessLog enables Fiber's plain-text access log.
	AccessLog bool
}

type stores struct {
	ping    func(context.Context) error
	users   identity.Repository
	orders  order.Store
	refunds refund.Store
	wallet  wallet.Store
}

func (d Deps) stores() stores {
	if d.DB != nil {
		pg := storage.NewPostgres(d.DB, d.Cfg.LockTimeout)
		return stores{
			ping:    pg.Ping,
			users:   identity.NewPostgresRepository(d.DB),
			orders:  pg.Orders(),
			refunds: pg.Refunds(),
			wallet:  pg.Wallet(),
		}
	}
	mem := d.Memory
	if mem == nil {
		mem = storage.NewMemory()
	}
	return stores{ping: mem.Ping, users: mem.Users(), orders: mem.Orders(), refunds: mem.Refunds(), wallet: mem.Wallet()}
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.AccessLog {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	st := d.stores()
	RegisterHealthRoutes(app, st.ping, d.Cache)
	engine := ledger.NewEngine(ledger.WithOverdraft(!d.Cfg.RejectOverdraft), ledger.WithLogger(d.Logger))
	notifier := notification.NewLoggerNotifier(d.Logger)

	identitySvc := identity.NewService(st.users)
	tokens := auth.NewService(d.Cfg.JWTSecret, d.Cfg.AccessTokenTTL)
	orderSvc := order.NewService(st.orders, engine, notifier, d.Logger)
	refundSvc := refund.NewService(st.refunds, engine, notifier, d.Logger)
	walletSvc := wallet.NewService(st.wallet, engine, d.Logger)

	if d.Cfg.AdminUsername != "" && d.Cfg.AdminPassword != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		admin, err := identitySvc.EnsureAdmin(ctx, d.Cfg.AdminUsername, d.Cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		d.Logger.Info("admin account ready", slog.Int64("user_id", admin.ID), slog.String("username", admin.Username))
	}

	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(httpx.RequestIDKey).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAuthRoutes(api, auth.NewHandler(identitySvc, tokens), middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRatePerMin))

	protected := api.Group("", middleware.JWTAuth(tokens))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterProfileRoute(protected, identitySvc, walletSvc)
	RegisterOrderRoutes(protected, order.NewHandler(orderSvc))
	RegisterRefundRoutes(protected, refund.NewHandler(refundSvc))
	RegisterWalletRoutes(protected, wallet.NewHandler(walletSvc))

	return nil
}
