package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finitefield.org/hanko-shop/internal/cart"
	"finitefield.org/hanko-shop/internal/catalog"
	"finitefield.org/hanko-shop/internal/config"
	"finitefield.org/hanko-shop/internal/content"
	"finitefield.org/hanko-shop/internal/gallery"
	"finitefield.org/hanko-shop/internal/i18n"
	mw "finitefield.org/hanko-shop/internal/middleware"
	"finitefield.org/hanko-shop/internal/observability"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "web: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newCartStore(ctx, cfg.Cart)
	if err != nil {
		return err
	}
	defer closeStore()

	a, err := newApp(cfg, logger, catalog.NewClient(cfg.Catalog.BaseURL, catalog.WithTimeout(cfg.Catalog.Timeout)), store)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("web listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("env", cfg.Env),
			zap.Bool("dev_mode", cfg.DevMode),
			zap.Bool("lazy_detail", cfg.LazyDetail),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newCartStore(ctx context.Context, cfg config.CartConfig) (cart.Store, func(), error) {
	switch cfg.Backend {
	case "redis":
		store, err := cart.NewRedisStore(ctx, cart.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.TTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("cart store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return cart.NewMemoryStore(nil), func() {}, nil
	}
}

// app carries the dependencies shared by every handler.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	catalog  catalog.Fetcher
	carts    cart.Store
	bundle   *i18n.Bundle
	content  *content.Renderer
	images   gallery.URLBuilder
	sessions *mw.Sessions
	views    *templates
}

func newApp(cfg config.Config, logger *zap.Logger, fetcher catalog.Fetcher, store cart.Store) (*app, error) {
	bundle, err := i18n.Load(cfg.Paths.Locales, cfg.Locale.Default, cfg.Locale.Supported)
	if err != nil {
		return nil, fmt.Errorf("load locales: %w", err)
	}
	images, err := gallery.NewURLBuilder(cfg.Images.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("image base url: %w", err)
	}
	sessions, err := mw.NewSessions(cfg.Session.HashKey, cfg.Session.BlockKey, cfg.Session.Secure, logger)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		catalog:  fetcher,
		carts:    store,
		bundle:   bundle,
		content:  content.NewRenderer(),
		images:   images,
		sessions: sessions,
	}
	views, err := newTemplates(cfg.Paths.Templates, cfg.DevMode, a.funcMap())
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	a.views = views
	return a, nil
}

// devHelpers enables the debug bearer token and the sign-in form.
func (a *app) devHelpers() bool { return a.cfg.Env != "prod" }

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	// If deployed behind a trusted reverse proxy/load balancer, RealIP will use
	// X-Forwarded-For to determine the client IP.
	r.Use(chimw.RealIP)
	r.Use(observability.Recovery(a.logger))
	r.Use(mw.HTMX)
	r.Use(a.sessions.Middleware)
	r.Use(mw.Auth(a.devHelpers()))
	r.Use(observability.RequestLogger(a.logger, mw.UserID))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(a.cfg.Server.HandlerTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/assets/*", mw.AssetsWithCache("/assets", a.cfg.Paths.Public+"/assets"))

	r.Group(func(r chi.Router) {
		r.Use(mw.Locale(a.bundle))
		r.Use(mw.CSRF(a.sessions.Secure()))

		r.Get("/", a.HomeHandler)
		r.Get("/products/{id}", a.ProductHandler)
		r.Get("/products/{id}/detail", a.ProductDetailFrag)
		r.Get("/products/{id}/gallery", a.ProductGalleryFrag)
		r.Post("/products/{id}/cart", a.AddToCartHandler)
		r.Get("/cart", a.CartHandler)
		if a.devHelpers() {
			r.Get("/login", a.LoginHandler)
			r.Post("/login", a.LoginSubmitHandler)
		}
	})
	r.NotFound(a.NotFoundHandler)
	return r
}
