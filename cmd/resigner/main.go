package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/kenneth/save-resign-gateway/internal/audit"
	"github.com/kenneth/save-resign-gateway/internal/backup"
	"github.com/kenneth/save-resign-gateway/internal/batch"
	"github.com/kenneth/save-resign-gateway/internal/codec"
	"github.com/kenneth/save-resign-gateway/internal/config"
	"github.com/kenneth/save-resign-gateway/internal/export"
	"github.com/kenneth/save-resign-gateway/internal/identity"
	"github.com/kenneth/save-resign-gateway/internal/keycache"
	"github.com/kenneth/save-resign-gateway/internal/metrics"
	"github.com/kenneth/save-resign-gateway/internal/middleware"
	"github.com/kenneth/save-resign-gateway/internal/rewrite"
	"github.com/kenneth/save-resign-gateway/internal/search"
	"github.com/kenneth/save-resign-gateway/internal/server"
	"github.com/kenneth/save-resign-gateway/internal/tracing"
)

var (
	version = "dev"
	commit  = "unknown"
)

const usage = `Usage: resigner <command> [flags]

Commands:
  decrypt   Decode every container in a directory
  encrypt   Encode every payload in a directory
  resign    Re-encode containers from one identity to another
  find-id   Search for the Steam identity that decodes a container
  serve     Run the local HTTP API

Run "resigner <command> --help" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "decrypt", "encrypt", "resign":
		err = runBatch(command, args, logger)
	case "find-id":
		err = runFindID(args, logger)
	case "serve":
		err = runServe(args, logger)
	case "version":
		fmt.Printf("resigner %s (%s)\n", version, commit)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", command, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.WithError(err).Fatal("Command failed")
	}
}

// loadConfig loads configuration and applies the configured log level.
func loadConfig(path string, logger *logrus.Logger) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return cfg, nil
}

func newCodec(cfg *config.Config) (codec.Codec, error) {
	if cfg.Codec.CompressionLevel > 0 {
		return codec.NewWithLevel(cfg.Codec.CompressionLevel)
	}
	return codec.New(), nil
}

func newDeriver(cfg *config.Config) (*identity.KeyDeriver, error) {
	if cfg.Identity.KeySeed != "" {
		return identity.NewKeyDeriverWithSeed(cfg.Identity.KeySeed)
	}
	return identity.NewKeyDeriver(), nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runBatch(command string, args []string, logger *logrus.Logger) error {
	flags := pflag.NewFlagSet(command, pflag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "path to config file")
	inputDir := flags.String("in", "", "input directory")
	outputDir := flags.String("out", "", "output directory")
	identityFlag := flags.String("identity", "", "player identity (decrypt/encrypt)")
	fromFlag := flags.String("from", "", "source identity (resign)")
	toFlag := flags.String("to", "", "target identity (resign)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *inputDir == "" || *outputDir == "" {
		return fmt.Errorf("--in and --out are required")
	}

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	deriver, err := newDeriver(cfg)
	if err != nil {
		return err
	}

	var cache keycache.Cache
	if cfg.KeyCache.Enabled {
		cache = keycache.NewMemoryCache(cfg.KeyCache.MaxItems, cfg.KeyCache.DefaultTTL)
	}

	opts := batch.Options{Workers: cfg.BatchWorkers()}
	if cfg.Audit.Enabled {
		opts.Audit = audit.NewLogger(cfg.Audit.MaxEvents, nil)
	}
	if cfg.Export.Enabled {
		locker, err := export.NewLocker(cfg.Export.Passphrase)
		if err != nil {
			return err
		}
		opts.Locker = locker
	}

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Backup.Enabled {
		uploader, err := backup.NewS3Uploader(ctx, backup.Options{
			Endpoint:     cfg.Backup.Endpoint,
			Region:       cfg.Backup.Region,
			Bucket:       cfg.Backup.Bucket,
			Prefix:       cfg.Backup.Prefix,
			AccessKey:    cfg.Backup.AccessKey,
			SecretKey:    cfg.Backup.SecretKey,
			UsePathStyle: cfg.Backup.UsePathStyle,
		}, logger)
		if err != nil {
			return err
		}
		opts.Uploader = uploader
	}
	if cfg.Rewrite.Enabled {
		rules := make([]rewrite.Rule, 0, len(cfg.Rewrite.Rules))
		for _, rule := range cfg.Rewrite.Rules {
			rules = append(rules, rewrite.Rule{
				Field:      rule.Field,
				Value:      rule.Value,
				RotateGUID: rule.RotateGUID,
			})
		}
		rewriter, err := rewrite.NewRewriter(rules, logger)
		if err != nil {
			return err
		}
		opts.Rewriter = rewriter
	}

	c, err := newCodec(cfg)
	if err != nil {
		return err
	}

	opts.Metrics = metrics.NewMetrics()
	processor := batch.NewProcessor(c, deriver, cache, logger, opts)

	var summary *batch.Summary
	switch command {
	case "decrypt":
		if *identityFlag == "" {
			return fmt.Errorf("--identity is required")
		}
		summary, err = processor.DecryptAll(ctx, *inputDir, *outputDir, *identityFlag)
	case "encrypt":
		if *identityFlag == "" {
			return fmt.Errorf("--identity is required")
		}
		summary, err = processor.EncryptAll(ctx, *inputDir, *outputDir, *identityFlag)
	case "resign":
		if *fromFlag == "" || *toFlag == "" {
			return fmt.Errorf("--from and --to are required")
		}
		summary, err = processor.ResignAll(ctx, *inputDir, *outputDir, *fromFlag, *toFlag)
	}
	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", summary.Failed, summary.Total)
	}
	return nil
}

func runFindID(args []string, logger *logrus.Logger) error {
	flags := pflag.NewFlagSet("find-id", pflag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "path to config file")
	file := flags.String("file", "", "encrypted container to probe")
	base := flags.Uint64("base", 0, "first SteamID64 to try (overrides config)")
	rangeSize := flags.Uint64("range", 0, "number of account IDs to try (overrides config)")
	workers := flags.Int("workers", 0, "worker count (overrides config)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("--file is required")
	}

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	sample, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", *file, err)
	}

	deriver, err := newDeriver(cfg)
	if err != nil {
		return err
	}

	c, err := newCodec(cfg)
	if err != nil {
		return err
	}

	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogger(cfg.Audit.MaxEvents, nil)
	}

	opts := search.Options{
		Base:    cfg.Search.Base,
		Range:   cfg.Search.Range,
		Workers: cfg.Search.Workers,
		Metrics: metrics.NewMetrics(),
		OnProgress: func(fraction float64, label string) {
			logger.WithFields(logrus.Fields{
				"progress": label,
			}).Info("Search progress")
		},
	}
	if *base > 0 {
		opts.Base = *base
	}
	if *rangeSize > 0 {
		opts.Range = *rangeSize
	}
	if *workers > 0 {
		opts.Workers = *workers
	}

	ctx, cancel := signalContext()
	defer cancel()

	finder := search.NewFinder(c, deriver)
	start := time.Now()
	steamID, found, err := finder.FindSteamIdentity(ctx, sample, opts)
	if auditLogger != nil {
		auditLogger.LogSearch(*file, found, err, time.Since(start))
	}
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no identity in range decodes the container")
	}

	logger.WithFields(logrus.Fields{
		"steam_id": steamID,
		"elapsed":  time.Since(start).String(),
	}).Info("Identity found")
	fmt.Println(steamID)
	return nil
}

func runServe(args []string, logger *logrus.Logger) error {
	flags := pflag.NewFlagSet("serve", pflag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "path to config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
	}).Info("Starting save resign gateway")

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, &cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	// Initialize metrics
	m := metrics.NewMetrics()
	metrics.SetVersion(version)
	m.StartSystemMetricsCollector()

	deriver, err := newDeriver(cfg)
	if err != nil {
		return err
	}

	var cache keycache.Cache
	if cfg.KeyCache.Enabled {
		cache = keycache.NewMemoryCache(cfg.KeyCache.MaxItems, cfg.KeyCache.DefaultTTL)
		logger.WithFields(logrus.Fields{
			"max_items":   cfg.KeyCache.MaxItems,
			"default_ttl": cfg.KeyCache.DefaultTTL,
		}).Info("Key cache enabled")
	}

	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogger(cfg.Audit.MaxEvents, nil)
		logger.WithFields(logrus.Fields{
			"max_events": cfg.Audit.MaxEvents,
		}).Info("Audit logging enabled")
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window, logger)
		defer rateLimiter.Stop()
		logger.WithFields(logrus.Fields{
			"limit":  cfg.RateLimit.Limit,
			"window": cfg.RateLimit.Window,
		}).Info("Rate limiting enabled")
	}

	// Reload picks up log level changes without a restart; components keep
	// the configuration they were built with.
	reloader, err := config.NewConfigReloader(*configPath, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create config reloader: %w", err)
	}
	defer reloader.Stop()
	reloader.OnReload(func(newCfg *config.Config) {
		if level, err := logrus.ParseLevel(newCfg.LogLevel); err == nil {
			logger.SetLevel(level)
		}
	})

	c, err := newCodec(cfg)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Codec:       c,
		Deriver:     deriver,
		Cache:       cache,
		Audit:       auditLogger,
		Metrics:     m,
		Logger:      logger,
		Config:      cfg,
		Version:     version,
		RateLimiter: rateLimiter,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		logger.WithField("addr", cfg.Server.ListenAddr).Info("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	} else {
		logger.Info("Server stopped gracefully")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Tracing shutdown failed")
	}
	return nil
}
