package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantfold/mtlink/pkg/config"
	"github.com/quantfold/mtlink/pkg/connector/registry"
	"github.com/quantfold/mtlink/pkg/connector/resilient"
	"github.com/quantfold/mtlink/pkg/logger"

	// Import all platform variants to register them
	_ "github.com/quantfold/mtlink/pkg/connector/platforms/mt4"
	_ "github.com/quantfold/mtlink/pkg/connector/platforms/mt5"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "mtlink",
		Short: "mtlink - MetaTrader platform connector",
		Long: `mtlink connects trading applications to MetaTrader terminals through a
uniform capability contract. The active platform is selected by the
trading_platform config key or the TRADING_PLATFORM environment variable.`,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "mtlink.yaml", "configuration file path")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mtlink v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "platforms",
		Short: "List registered trading platforms",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range registry.Supported() {
				fmt.Println(name)
			}
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "schema [platform]",
		Short: "Show the configuration schema for a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, ok := registry.ConfigSchema(args[0])
			if !ok {
				return fmt.Errorf("unknown platform %q (supported: %v)", args[0], registry.Supported())
			}

			out, err := json.MarshalIndent(schema, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Connect to the configured platform and report session health",
		Long: `check loads the configuration, creates the selected platform connector,
connects, validates the session with an account query, and prints the
account summary. The exit status reports whether the platform is usable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(configPath)
		},
	}
	root.AddCommand(checkCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCheck(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	factory := registry.Default()

	// Every registered platform must be constructible from its config
	// section before the active one is exercised; a broken section should
	// surface here, not on the next platform switch.
	for _, name := range factory.Supported() {
		sectionCfg, err := cfg.Platform(name)
		if err != nil {
			logger.Warn("platform has no config section", zap.String("platform", name))
			continue
		}
		if _, err := factory.Create(name, sectionCfg); err != nil {
			return fmt.Errorf("platform %s is registered but not constructible: %w", name, err)
		}
	}
	fmt.Printf("Registered:  %v\n", factory.Supported())

	platformCfg, err := cfg.ActivePlatform()
	if err != nil {
		return err
	}

	conn, err := factory.Create(cfg.TradingPlatform, platformCfg)
	if err != nil {
		return err
	}
	wrapped := resilient.Wrap(conn)

	ctx, cancel := context.WithTimeout(context.Background(), platformCfg.Timeout.ConnectTimeout()+platformCfg.Timeout.TradeTimeout())
	defer cancel()

	logger.Info("checking platform session",
		zap.String("platform", wrapped.PlatformName()))

	start := time.Now()
	account, err := wrapped.AccountInfo(ctx)
	if err != nil {
		logger.Error("platform check failed", zap.Error(err))
		return fmt.Errorf("platform %s unusable: %w", wrapped.PlatformName(), err)
	}
	if account == nil {
		return fmt.Errorf("platform %s reachable but no account is logged in", wrapped.PlatformName())
	}

	if !wrapped.ValidateConnection(ctx) {
		return fmt.Errorf("platform %s failed session validation", wrapped.PlatformName())
	}

	serverTime, err := wrapped.ServerTime(ctx)
	if err != nil {
		logger.Warn("server time unavailable", zap.Error(err))
	}

	fmt.Printf("Platform:    %s\n", wrapped.PlatformName())
	fmt.Printf("Account:     %d (%s)\n", account.Login, account.Name)
	fmt.Printf("Server:      %s\n", account.Server)
	fmt.Printf("Currency:    %s\n", account.Currency)
	fmt.Printf("Balance:     %.2f\n", account.Balance)
	fmt.Printf("Equity:      %.2f\n", account.Equity)
	fmt.Printf("Free margin: %.2f\n", account.FreeMargin)
	fmt.Printf("Leverage:    1:%d\n", account.Leverage)
	if !serverTime.IsZero() {
		fmt.Printf("Server time: %s\n", serverTime.Format(time.RFC3339))
	}
	fmt.Printf("Checked in:  %s\n", time.Since(start).Round(time.Millisecond))

	if err := wrapped.Disconnect(context.Background()); err != nil {
		logger.Warn("disconnect reported error", zap.Error(err))
	}
	return nil
}
