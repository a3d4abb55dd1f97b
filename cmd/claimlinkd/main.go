package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"claimlink/cmd/internal/passphrase"
	"claimlink/config"
	"claimlink/core"
	"claimlink/crypto"
	"claimlink/observability/logging"
	telemetry "claimlink/observability/otel"
	"claimlink/rpc"
	"claimlink/rpc/middleware"
	"claimlink/storage"
)

const (
	relayerPassEnv = "CLAIMLINK_RELAYER_PASS"
	serviceName    = "claimlinkd"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file (.toml or .yaml)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "claimlinkd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	passSource := passphrase.NewSource(relayerPassEnv, "relayer keystore")
	pass, err := passSource.Get()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configFile, config.WithKeystorePassphrase(pass))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(cfg.Logging.Environment)
	if env == "" {
		env = strings.TrimSpace(os.Getenv("CLAIMLINK_ENV"))
	}
	logger := logging.SetupWithOptions(serviceName, env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	escrow, err := cfg.Escrow()
	if err != nil {
		return err
	}
	endpoint := strings.TrimSpace(cfg.Telemetry.Endpoint)
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.HeadersFromEnv(),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Attributes: map[string]string{
			"claimlink.escrow":   escrow.Hex(),
			"claimlink.chain_id": strconv.FormatUint(cfg.ChainID, 10),
		},
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	relayerKey, err := crypto.LoadFromKeystore(cfg.RelayerKeystorePath, pass)
	if err != nil {
		return fmt.Errorf("load relayer key: %w", err)
	}
	owner, err := cfg.Owner()
	if err != nil {
		return err
	}
	fees, err := feeSchedule(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	journal, err := storage.OpenEventLog(cfg.EventLogPath)
	if err != nil {
		db.Close()
		return fmt.Errorf("open event log: %w", err)
	}

	node, err := core.NewNode(core.Options{
		DB:            db,
		Journal:       journal,
		Escrow:        escrow,
		Owner:         owner,
		RelayerKey:    relayerKey,
		ChainID:       cfg.ChainID,
		DomainName:    cfg.DomainName,
		DomainVersion: cfg.DomainVersion,
		Fees:          fees,
		Logger:        logger,
	})
	if err != nil {
		_ = journal.Close()
		db.Close()
		return fmt.Errorf("create node: %w", err)
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Error("close node", slog.Any("error", err))
		}
	}()

	specs, err := assetSpecs(cfg)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if err := node.RegisterAsset(spec); err != nil {
			return fmt.Errorf("register asset %s: %w", spec.Address.Hex(), err)
		}
	}
	allocs, err := allocations(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	seeded, err := node.Seed(ctx, allocs)
	if err != nil {
		return fmt.Errorf("seed allocations: %w", err)
	}
	if seeded {
		logger.Info("seeded starting allocations", slog.Int("count", len(allocs)))
	}

	jwtSecret := strings.TrimSpace(os.Getenv(cfg.RPC.JWTSecretEnv))
	if jwtSecret == "" {
		logger.Warn("rpc bearer auth disabled; caller-bound methods will be rejected",
			slog.String("env", cfg.RPC.JWTSecretEnv))
	}
	server := rpc.NewServer(node, rpc.ServerConfig{
		Auth: middleware.AuthConfig{
			HMACSecret: jwtSecret,
			Issuer:     cfg.RPC.JWTIssuer,
			Audience:   cfg.RPC.JWTAudience,
			ClockSkew:  time.Duration(cfg.RPC.ClockSkewSeconds) * time.Second,
		},
		RateLimit: middleware.RateLimit{
			PerSecond:         cfg.RPC.RateLimitPerSecond,
			Burst:             cfg.RPC.RateLimitBurst,
			TrustProxyHeaders: cfg.RPC.TrustProxyHeaders,
		},
		AllowedOrigins: cfg.RPC.AllowedOrigins,
		MaxBodyBytes:   cfg.RPC.MaxBodyBytes,
		ServiceName:    serviceName,
	}, logger)

	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("claimlink node started",
		slog.String("escrow", escrow.Hex()),
		slog.String("relayer", relayerKey.Address().Hex()),
		slog.Uint64("chain_id", cfg.ChainID))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}
