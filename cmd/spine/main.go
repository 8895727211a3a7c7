package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chainbridge-labs/spine/pkg/action"
	"github.com/chainbridge-labs/spine/pkg/api"
	"github.com/chainbridge-labs/spine/pkg/audit"
	"github.com/chainbridge-labs/spine/pkg/config"
	"github.com/chainbridge-labs/spine/pkg/contracts"
	"github.com/chainbridge-labs/spine/pkg/crypto"
	"github.com/chainbridge-labs/spine/pkg/decision"
	"github.com/chainbridge-labs/spine/pkg/ledger"
	"github.com/chainbridge-labs/spine/pkg/observability"
	"github.com/chainbridge-labs/spine/pkg/replayguard"
	"github.com/chainbridge-labs/spine/pkg/spine"
)

// loggingDriver is the default effect driver: it records the approved
// action in the process log. Deployments plug a real driver in here.
type loggingDriver struct {
	logger *slog.Logger
}

func (d *loggingDriver) Apply(_ context.Context, dec *contracts.DecisionResult) (map[string]string, error) {
	d.logger.Info("effect applied", "event_hash", dec.EventHash, "policy_version", dec.PolicyVersion)
	return map[string]string{"driver": "logging"}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	var obs *observability.Provider
	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obs, err = observability.New(ctx, obsCfg)
		if err != nil {
			log.Fatalf("observability: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = obs.Shutdown(shutdownCtx)
		}()
	}

	chainStore, closeChain, err := openChainStore(cfg)
	if err != nil {
		log.Fatalf("chain store: %v", err)
	}
	defer closeChain()

	signer, err := crypto.NewEd25519Signer(cfg.SigningKeyID)
	if err != nil {
		log.Fatalf("signer: %v", err)
	}

	lgr := ledger.New(chainStore, ledger.WithSigner(signer), ledger.WithLogger(logger))
	if err := lgr.ValidateOnStartup(ctx); err != nil {
		// A chain that fails validation must never accept new proofs.
		log.Fatalf("chain validation: %v", err)
	}
	logger.Info("chain validated", "entries", lgr.Length(), "head", lgr.Head())

	replayStore, closeReplay, err := openReplayStore(cfg)
	if err != nil {
		log.Fatalf("replay store: %v", err)
	}
	defer closeReplay()

	guard := replayguard.New(replayStore,
		replayguard.WithWindow(cfg.ReplayWindow),
		replayguard.WithSkewTolerance(cfg.SkewTolerance),
		replayguard.WithLogger(logger),
	)
	loaded, err := guard.Reload(ctx)
	if err != nil {
		log.Fatalf("replay guard reload: %v", err)
	}
	logger.Info("replay guard ready", "records", loaded, "window", cfg.ReplayWindow)

	policy, err := decision.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}
	engine, err := decision.NewEngine(policy)
	if err != nil {
		log.Fatalf("policy compile: %v", err)
	}
	logger.Info("policy loaded", "version", engine.PolicyVersion(), "path", cfg.PolicyPath)

	executor := action.NewExecutor(&loggingDriver{logger: logger}, action.WithLogger(logger))

	opts := []spine.Option{
		spine.WithAuditor(audit.NewLogger()),
		spine.WithLogger(logger),
	}
	if obs != nil {
		opts = append(opts, spine.WithObservability(obs))
	}
	pipeline := spine.New(guard, engine, executor, lgr, opts...)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(pipeline).Handler(api.NewRateLimiter(50, 100), cfg.JWTSecret),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func openChainStore(cfg *config.Config) (ledger.Store, func(), error) {
	switch cfg.LedgerStore {
	case config.StoreFile:
		fs, err := ledger.NewFileStore(cfg.LedgerPath)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() { _ = fs.Close() }, nil
	case config.StoreSQLite:
		ss, err := ledger.OpenSQLiteStore(cfg.LedgerPath)
		if err != nil {
			return nil, nil, err
		}
		return ss, func() { _ = ss.Close() }, nil
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.LedgerDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		ps := ledger.NewPostgresStore(db)
		if err := ps.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return ps, func() { _ = db.Close() }, nil
	}
	return nil, nil, errors.New("unknown ledger store " + cfg.LedgerStore)
}

func openReplayStore(cfg *config.Config) (replayguard.Store, func(), error) {
	switch cfg.ReplayStore {
	case config.StoreMemory:
		return replayguard.NewMemoryStore(), func() {}, nil
	case config.StoreSQLite:
		ss, err := replayguard.OpenSQLiteStore(cfg.ReplayPath)
		if err != nil {
			return nil, nil, err
		}
		return ss, func() { _ = ss.Close() }, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return replayguard.NewRedisStore(client, cfg.ReplayWindow), func() { _ = client.Close() }, nil
	}
	return nil, nil, errors.New("unknown replay store " + cfg.ReplayStore)
}

func logLevel(s string) slog.Level {
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
