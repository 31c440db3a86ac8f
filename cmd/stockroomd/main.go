package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/stockroom/internal/httpapi"
	"github.com/MarkoPoloResearchLab/stockroom/internal/store/filestore"
	"github.com/MarkoPoloResearchLab/stockroom/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/stockroom/pkg/inventory"
)

const (
	flagStoreDSN          = "store-dsn"
	flagListenAddr        = "listen-addr"
	flagLowStockThreshold = "low-stock-threshold"
	flagSessionSigningKey = "session-signing-key"
	flagAllowedOrigins    = "allowed-origins"

	configKeyStoreDSN          = "store_dsn"
	configKeyListenAddr        = "listen_addr"
	configKeyLowStockThreshold = "low_stock_threshold"
	configKeySessionSigningKey = "session_signing_key"
	configKeyAllowedOrigins    = "allowed_origins"

	defaultStoreDSN   = "inventory.json"
	defaultListenAddr = ":8080"

	flushTimeout = 5 * time.Second
)

type runtimeConfig struct {
	StoreDSN          string
	ListenAddr        string
	LowStockThreshold int64
	SessionSigningKey string
	AllowedOrigins    string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stockroomd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "stockroomd",
		Short:         "Inventory ledger HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagStoreDSN, defaultStoreDSN, "snapshot store DSN (JSON file path, sqlite:// or postgres://)")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().Int64(flagLowStockThreshold, 5, "low stock threshold for the low_stock view")
	cmd.Flags().String(flagSessionSigningKey, "", "HMAC key for cart session cookies")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated CORS origins")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyStoreDSN:          "STORE_DSN",
		configKeyListenAddr:        "LISTEN_ADDR",
		configKeyLowStockThreshold: "LOW_STOCK_THRESHOLD",
		configKeySessionSigningKey: "SESSION_SIGNING_KEY",
		configKeyAllowedOrigins:    "ALLOWED_ORIGINS",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}
	flagNames := map[string]string{
		configKeyStoreDSN:          flagStoreDSN,
		configKeyListenAddr:        flagListenAddr,
		configKeyLowStockThreshold: flagLowStockThreshold,
		configKeySessionSigningKey: flagSessionSigningKey,
		configKeyAllowedOrigins:    flagAllowedOrigins,
	}
	for key, name := range flagNames {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}

	cfg.StoreDSN = viper.GetString(configKeyStoreDSN)
	if cfg.StoreDSN == "" {
		cfg.StoreDSN = defaultStoreDSN
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.LowStockThreshold = viper.GetInt64(configKeyLowStockThreshold)
	cfg.SessionSigningKey = viper.GetString(configKeySessionSigningKey)
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	if cfg.SessionSigningKey == "" {
		return fmt.Errorf("session signing key is required")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, archiver, cleanup, err := openStore(ctx, cfg.StoreDSN, logger)
	if err != nil {
		return fmt.Errorf("store open: %w", err)
	}
	defer cleanup()

	clock := func() int64 { return time.Now().UTC().Unix() }
	options := []inventory.ServiceOption{
		inventory.WithOperationLogger(zapOperationLogger{logger: logger}),
	}
	if archiver != nil {
		options = append(options, inventory.WithReceiptArchiver(archiver))
	}
	service, err := inventory.NewService(ctx, store, clock, options...)
	if err != nil {
		return fmt.Errorf("inventory service init: %w", err)
	}

	apiConfig := httpapi.Config{
		ListenAddr:        cfg.ListenAddr,
		AllowedOrigins:    httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		LowStockThreshold: cfg.LowStockThreshold,
		SessionSigningKey: cfg.SessionSigningKey,
	}
	if err := apiConfig.Validate(); err != nil {
		return fmt.Errorf("api config: %w", err)
	}

	serveErr := httpapi.Run(ctx, apiConfig, service, logger)

	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if flushErr := service.Flush(flushCtx); flushErr != nil {
		logger.Error("final snapshot flush failed", zap.Error(flushErr))
		if serveErr == nil {
			serveErr = flushErr
		}
	}
	return serveErr
}

// openStore resolves the DSN to a snapshot backend: postgres:// and
// sqlite:// open a relational store through GORM (which also archives
// receipts); anything else is treated as a JSON snapshot file path.
func openStore(ctx context.Context, dsn string, logger *zap.Logger) (inventory.SnapshotStore, inventory.ReceiptArchiver, func(), error) {
	noop := func() {}
	switch {
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		return openGormStore(ctx, postgres.Open(dsn))
	case strings.HasPrefix(dsn, "sqlite://"):
		path, err := resolveSQLitePath(dsn)
		if err != nil {
			return nil, nil, noop, err
		}
		return openGormStore(ctx, sqlite.Open(path))
	default:
		path := strings.TrimPrefix(dsn, "file://")
		return filestore.New(path, filestore.WithLogger(logger)), nil, noop, nil
	}
}

func openGormStore(ctx context.Context, dialector gorm.Dialector) (inventory.SnapshotStore, inventory.ReceiptArchiver, func(), error) {
	noop := func() {}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, nil, noop, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, noop, err
	}
	cleanup := func() { _ = sqlDB.Close() }
	store := gormstore.New(db.WithContext(ctx))
	if err := store.Migrate(); err != nil {
		cleanup()
		return nil, nil, noop, err
	}
	return store, store, cleanup, nil
}

func resolveSQLitePath(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse sqlite url: %w", err)
	}
	path := parsed.Path
	if path == "" {
		path = parsed.Host
	}
	if path == "" || path == "/" {
		path = "stockroom.db"
	}
	if path == ":memory:" {
		return path, nil
	}
	if !strings.HasPrefix(path, "/") {
		path = filepath.Join(".", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// zapOperationLogger bridges the core's operation log to zap.
type zapOperationLogger struct {
	logger *zap.Logger
}

func (opLogger zapOperationLogger) LogOperation(_ context.Context, entry inventory.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.ItemID.String() != "" {
		fields = append(fields, zap.String("item_id", entry.ItemID.String()))
	}
	if entry.Quantity != 0 {
		fields = append(fields, zap.Int64("quantity", entry.Quantity))
	}
	if entry.AmountCents != 0 {
		fields = append(fields, zap.Int64("amount_cents", entry.AmountCents))
	}
	if entry.ReceiptID != "" {
		fields = append(fields, zap.String("receipt_id", entry.ReceiptID))
	}
	if entry.Error != nil {
		opLogger.logger.Warn("inventory operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	opLogger.logger.Info("inventory operation", fields...)
}
