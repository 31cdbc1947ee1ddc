package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/zdte-vault/internal/api"
	"github.com/atmx/zdte-vault/internal/archive"
	"github.com/atmx/zdte-vault/internal/asset"
	"github.com/atmx/zdte-vault/internal/config"
	"github.com/atmx/zdte-vault/internal/metrics"
	"github.com/atmx/zdte-vault/internal/model"
	"github.com/atmx/zdte-vault/internal/oracle"
	"github.com/atmx/zdte-vault/internal/pricing"
	"github.com/atmx/zdte-vault/internal/store"
	"github.com/atmx/zdte-vault/internal/vault"
)

func main() {
	configPath := flag.String("config", envOr("ZDTE_CONFIG", "config.toml"), "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("zdte-vault exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("zdte-vault stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- Redis (cache and optional oracle feed) ---
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cleanup = append(cleanup, func() { rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("connected to Redis", "addr", cfg.Redis.Addr)
	}

	// --- Store ---
	var st store.Store
	if cfg.Postgres.DSN != "" {
		pcfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres config: %w", err)
		}
		pcfg.MaxConns = int32(cfg.Postgres.PoolMaxConns)
		pool, err := pgxpool.NewWithConfig(ctx, pcfg)
		if err != nil {
			return fmt.Errorf("postgres connect: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if cfg.Postgres.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("postgres migrate: %w", err)
			}
		}
		st = pg
		logger.Info("connected to PostgreSQL")
	} else {
		logger.Warn("postgres dsn not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}
	if rdb != nil {
		st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL.Duration)
		logger.Info("Redis ledger cache enabled", "ttl", cfg.Redis.CacheTTL.Duration)
	}

	// --- Oracle ---
	var (
		prices     oracle.PriceOracle
		volatility oracle.VolatilityOracle
		static     *oracle.Static
	)
	switch cfg.Oracle.Source {
	case "redis":
		ro := oracle.NewRedisOracle(rdb, cfg.Oracle.RedisLabel, cfg.Oracle.MaxAge.Duration)
		prices, volatility = ro, ro
	default:
		spot, err := cfg.Market.Price(cfg.Oracle.Spot)
		if err != nil {
			return err
		}
		vol, err := decimal.NewFromString(cfg.Oracle.Volatility)
		if err != nil {
			return fmt.Errorf("oracle volatility: %w", err)
		}
		static = oracle.NewStatic(spot, vol)
		prices, volatility = static, static
	}
	logger.Info("oracle configured", "source", cfg.Oracle.Source)

	// --- Custody ---
	base := asset.NewLedger(cfg.Market.BaseAsset)
	quote := asset.NewLedger(cfg.Market.QuoteAsset)

	// --- Vault ---
	vcfg, err := vaultConfig(cfg.Market, time.Now())
	if err != nil {
		return err
	}
	v, err := vault.New(vcfg, vault.Deps{
		Store:      st,
		Base:       base,
		Quote:      quote,
		Prices:     prices,
		Volatility: volatility,
		Pricer:     pricing.NewBlackScholes(vcfg.Scale, cfg.Pricing.RiskFreeRate),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if err := v.Restore(ctx); err != nil {
		return err
	}
	// Custody held by the vault equals the pool assets it restored.
	base.SetCustody(v.Pool(false).TotalAssets)
	quote.SetCustody(v.Pool(true).TotalAssets)

	// --- Archive ---
	var archiver *archive.S3Archiver
	if cfg.S3.Enabled {
		archiver, err = archive.New(ctx, archive.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fmt.Errorf("s3 archive: %w", err)
		}
		logger.Info("S3 archive enabled", "bucket", cfg.S3.Bucket)
	}

	// --- API ---
	hub := api.NewWSHub(logger)
	opts := api.Options{
		Ledger: st,
		Hub:    hub,
		Logger: logger,
	}
	if archiver != nil {
		opts.Archiver = archiver
	}
	if cfg.Server.DevEndpoints {
		if static != nil {
			opts.Oracle = static
		}
		opts.Faucet = map[model.PoolSide]api.Minter{
			model.SideBase:  base,
			model.SideQuote: quote,
		}
		logger.Warn("dev endpoints enabled")
	}
	svc := api.NewService(v, opts)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(cors(cfg.Server.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"zdte-vault"}`))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api/v1", svc.Routes)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("zdte-vault listening",
			"port", cfg.Server.Port,
			"market", vcfg.Label,
			"expiry", vcfg.Expiry,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down zdte-vault...")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
		if archiver != nil && cfg.S3.ArchiveOnShutdown {
			key, err := archiver.Snapshot(sctx, vcfg.Label, v.Snapshot(), time.Now().UTC())
			if err != nil {
				logger.Error("shutdown snapshot failed", "err", err)
			} else {
				logger.Info("shutdown snapshot archived", "key", key)
			}
		}
		return nil
	})

	return g.Wait()
}

func vaultConfig(m config.MarketConfig, now time.Time) (vault.Config, error) {
	inc, err := m.Price(m.StrikeIncrement)
	if err != nil {
		return vault.Config{}, err
	}
	pct, err := decimal.NewFromString(m.MaxOTMPercent)
	if err != nil {
		return vault.Config{}, fmt.Errorf("max_otm_percent: %w", err)
	}
	expiry, err := m.ExpiryTime(now)
	if err != nil {
		return vault.Config{}, err
	}
	return vault.Config{
		Label:           m.Label,
		BaseAsset:       m.BaseAsset,
		QuoteAsset:      m.QuoteAsset,
		Scale:           m.Scale(),
		StrikeIncrement: inc,
		MaxOTMPercent:   pct,
		Expiry:          expiry,
	}, nil
}

// cors allows the configured origins; "*" allows any.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowed["*"]:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
