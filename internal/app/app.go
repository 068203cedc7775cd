package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dperri/crossalert/internal/config"
	"github.com/dperri/crossalert/internal/delivery/httpapi"
	"github.com/dperri/crossalert/internal/domain"
	"github.com/dperri/crossalert/internal/infra/db"
	"github.com/dperri/crossalert/internal/infra/feed"
	"github.com/dperri/crossalert/internal/infra/log"
	"github.com/dperri/crossalert/internal/infra/telegram"
	"github.com/dperri/crossalert/internal/usecase"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	server    *http.Server
	adapters  []*feed.Adapter
	matcher   *usecase.Matcher
	syncer    *usecase.SubscriptionSyncer
	logger    *zap.Logger
	cleanupFn func() error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := log.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	alertRepo := db.NewAlertRepository(dbConn)
	cache := usecase.NewPriceCache()

	requiredFor := func(exchange string) func(ctx context.Context) ([]string, error) {
		return func(ctx context.Context) ([]string, error) {
			return usecase.ActiveSymbols(ctx, alertRepo, exchange)
		}
	}

	adapters := []*feed.Adapter{
		feed.NewAdapter(feed.NewBybit(cfg.BybitWSURL), cache, requiredFor(domain.ExchangeBybit), cfg.FeedReconnectDelay, cfg.FeedDialTimeout, logger),
		feed.NewAdapter(feed.NewBinance(cfg.BinanceWSURL), cache, requiredFor(domain.ExchangeBinance), cfg.FeedReconnectDelay, cfg.FeedDialTimeout, logger),
	}

	feedAdapters := make([]domain.FeedAdapter, 0, len(adapters))
	for _, adapter := range adapters {
		feedAdapters = append(feedAdapters, adapter)
	}

	notifier := telegram.NewNotifier(cfg.TelegramAPIBaseURL, cfg.ServerDomain, cfg.NotifyTimeout, logger)
	matcher := usecase.NewMatcher(alertRepo, cache, notifier, cfg.MatchInterval, cfg.NotifyTimeout, logger)
	syncer := usecase.NewSubscriptionSyncer(alertRepo, feedAdapters, cfg.SweepInterval, logger)
	alertUC := usecase.NewAlertUsecase(alertRepo, syncer, logger)
	handlers := httpapi.NewHandlers(alertUC, logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	cleanup := func() error {
		sqlDB, err := dbConn.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	return &App{
		server:    server,
		adapters:  adapters,
		matcher:   matcher,
		syncer:    syncer,
		logger:    logger,
		cleanupFn: cleanup,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("crossalert service starting", zap.String("http_addr", a.server.Addr))

	g, gctx := errgroup.WithContext(ctx)

	for _, adapter := range a.adapters {
		adapter := adapter
		g.Go(func() error {
			return adapter.Run(gctx)
		})
	}
	g.Go(func() error {
		return a.matcher.Run(gctx)
	})
	g.Go(func() error {
		return a.syncer.Run(gctx)
	})
	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	a.logger.Info("crossalert service started")
	return g.Wait()
}

func (a *App) Shutdown() {
	a.logger.Info("crossalert service shutting down")
	if a.cleanupFn != nil {
		if err := a.cleanupFn(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
