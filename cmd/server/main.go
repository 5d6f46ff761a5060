package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"log" // fatal startup errors
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iliyamo/convocation-seating/internal/allocation"
	"github.com/iliyamo/convocation-seating/internal/config"
	"github.com/iliyamo/convocation-seating/internal/database"
	"github.com/iliyamo/convocation-seating/internal/handler"
	"github.com/iliyamo/convocation-seating/internal/lock"
	"github.com/iliyamo/convocation-seating/internal/logger"
	"github.com/iliyamo/convocation-seating/internal/metrics"
	"github.com/iliyamo/convocation-seating/internal/middleware"
	"github.com/iliyamo/convocation-seating/internal/model"
	"github.com/iliyamo/convocation-seating/internal/queue"
	"github.com/iliyamo/convocation-seating/internal/repository"
	"github.com/iliyamo/convocation-seating/internal/router"
	queue_publisher "github.com/iliyamo/convocation-seating/internal/service"
	"github.com/iliyamo/convocation-seating/internal/ticket"
)

func main() {
	cfg := config.Load() // Load environment config
	lg := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := openDB(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, dialect); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	enclosures := repository.NewEnclosureRepo(db)
	reservations := repository.NewSeatReservationRepo(db)
	registrants := repository.NewRegistrantRepo(db)
	allocations := repository.NewAllocationRepo(db)
	attendance := repository.NewAttendanceRepo(db)
	staff := repository.NewStaffRepo(db)
	bootstrapAdmin(ctx, cfg, staff, lg)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		lg.Warn("redis unavailable: rate limiting, stats cache and allocation lock disabled")
	} else {
		defer rdb.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engineOpts := []allocation.Option{
		allocation.WithLogger(lg),
		allocation.WithMetrics(m),
		allocation.WithMaxRetries(cfg.Allocation.MaxRetries),
		allocation.WithParallelism(cfg.Allocation.Parallelism),
	}
	ticketOpts := []ticket.Option{ticket.WithLogger(lg), ticket.WithMetrics(m)}
	if cfg.Allocation.LockEnabled {
		if l := lock.NewRedisLocker(rdb, cfg.Allocation.LockPrefix, cfg.Allocation.LockTTL, cfg.Allocation.LockWait); l != nil {
			engineOpts = append(engineOpts, allocation.WithLocker(l))
		}
	}
	if cfg.Queue.PublishEnabled {
		pub := queue_publisher.New(cfg.Queue.URL, lg)
		engineOpts = append(engineOpts, allocation.WithPublisher(pub))
		ticketOpts = append(ticketOpts, ticket.WithPublisher(pub))
	}

	engine := allocation.NewEngine(allocation.Deps{
		Enclosures:   enclosures,
		Reservations: reservations,
		Roster:       registrants,
		Allocations:  allocations,
	}, engineOpts...)
	tickets := ticket.NewService(registrants, allocations, attendance, ticketOpts...)

	if cfg.Queue.ConsumerEnabled {
		sink := queue.NewAttendanceLog(cfg.Queue.LogDir)
		go func() {
			if err := queue.StartAttendanceConsumer(ctx, cfg.Queue.URL, sink, lg); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("attendance consumer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover(), echomw.RequestID())

	cacheCfg := config.LoadCacheConfig()
	purge := func(ctx context.Context) error { return middleware.PurgeCache(ctx, cacheCfg, rdb) }
	tickHandler := handler.NewTicketHandler(tickets, lg)

	router.RegisterRoutes(e, db, reg)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, staff))
	router.RegisterAdmin(e, handler.NewAdminHandler(engine, purge, lg), cfg.JWTSecret, middleware.NewRedisCache(cacheCfg, rdb))
	router.RegisterCheckin(e, tickHandler, cfg.JWTSecret)
	router.RegisterPublic(e, tickHandler, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, lg))

	addr := ":" + cfg.Port
	lg.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env), slog.String("db", string(dialect)))
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown", slog.String("error", err.Error()))
	}
}

func openDB(cfg config.Config) (*sql.DB, database.Dialect, error) {
	if cfg.DBDriver == "sqlite" {
		db, err := database.OpenSQLite(cfg.SQLitePath)
		return db, database.SQLite, err
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	return db, database.MySQL, err
}

func bootstrapAdmin(ctx context.Context, cfg config.Config, staff *repository.StaffRepo, lg *slog.Logger) {
	if cfg.BootstrapAdminEmail == "" || cfg.BootstrapAdminPassword == "" {
		return
	}
	_, err := staff.Create(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword, model.RoleAdmin, cfg.BcryptCost)
	switch {
	case err == nil:
		lg.Info("bootstrap admin created", slog.String("email", cfg.BootstrapAdminEmail))
	case errors.Is(err, repository.ErrEmailExists):
	default:
		log.Fatalf("bootstrap admin: %v", err)
	}
}
