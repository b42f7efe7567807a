package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	httpadp "loan-lifecycle-bridge/internal/adapter/http"
	idemp "loan-lifecycle-bridge/internal/adapter/middleware"
	"loan-lifecycle-bridge/internal/adapter/recordset"
	"loan-lifecycle-bridge/internal/adapter/repository/mysql"
	"loan-lifecycle-bridge/internal/config"
	"loan-lifecycle-bridge/internal/domain/audit"
	"loan-lifecycle-bridge/internal/infrastructure/backend"
	"loan-lifecycle-bridge/internal/infrastructure/cache"
	"loan-lifecycle-bridge/internal/infrastructure/db"
	"loan-lifecycle-bridge/internal/infrastructure/logging"
	"loan-lifecycle-bridge/internal/usecase/hashgate"
	"loan-lifecycle-bridge/internal/usecase/loan"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		var err error
		rdb, err = cache.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			log.WithError(err).Fatal("redis unavailable")
		}
		defer rdb.Close()
	}

	gate := hashgate.New(recordSets(cfg, rdb))

	var events audit.Repository
	if cfg.AuditDBDriver != "" {
		gdb, err := db.OpenGorm(cfg.AuditDBDriver, cfg.AuditDSN())
		if err != nil {
			log.WithError(err).Fatal("audit database unavailable")
		}
		repo := mysql.NewAuditRepository(gdb)
		if err := repo.Migrate(ctx); err != nil {
			log.WithError(err).Fatal("audit migration failed")
		}
		events = repo
	}

	b, err := backend.Select(ctx, cfg, rdb, log)
	if err != nil {
		log.WithError(err).Fatal("no loan backend")
	}
	if c, ok := b.(interface{ Close() }); ok {
		defer c.Close()
	}

	uc := loan.NewUsecase(b, gate, events, logging.Module(log, "bridge"))
	h := httpadp.NewHandler(b)
	lh := httpadp.NewLoanHandler(uc)

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator(cfg.MinLoanAmount, cfg.MaxLoanAmount)
	e.Use(middleware.Logger(), middleware.Recover())
	if rdb != nil {
		e.Use(idemp.Idempotency(rdb, idemp.IdempotencyConfig{
			TTL:     time.Duration(cfg.IdempTTLSecs) * time.Second,
			LockTTL: cfg.ConfirmTimeout + 30*time.Second,
			Log:     logging.Module(log, "idempotency"),
		}))
	}

	// routes
	e.GET("/health", h.Health)
	g := e.Group("/api/loan")
	g.POST("/create", lh.CreateLoan)
	g.GET("/borrower/:address", lh.ListBorrowerLoans)
	g.GET("/:loan_id", lh.GetLoan)
	g.GET("/:loan_id/events", lh.ListEvents)
	g.POST("/:loan_id/fund", lh.FundLoan)
	g.POST("/:loan_id/disburse", lh.DisburseLoan)
	g.POST("/:loan_id/repay", lh.RepayLoan)

	addr := ":" + cfg.AppPort
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "mode": b.Mode()}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		log.WithError(err).Warn("shutdown")
	}
}

func recordSets(cfg *config.Config, rdb *redis.Client) (kyc, explanations hashgate.RecordSet) {
	if cfg.HashRecordBackend == "redis" {
		return recordset.NewRedis(rdb, recordset.KYCKey), recordset.NewRedis(rdb, recordset.ExplanationKey)
	}
	return recordset.NewDir(filepath.Join(cfg.StoragePath, "kyc_documents"), ""),
		recordset.NewDir(filepath.Join(cfg.StoragePath, "explanations"), ".json")
}
