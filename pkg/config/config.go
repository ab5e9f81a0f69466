// Package config provides the configuration system for mtlink.
//
// Configuration is a YAML document with a top-level trading_platform
// selector and one section per platform family. Values support ${ENV_VAR}
// substitution, and the TRADING_PLATFORM environment variable overrides the
// selector from the file so a deployment can switch platforms without
// editing configuration.
//
// Example:
//
//	trading_platform: mt5
//	mt5:
//	  terminal_path: "C:/Program Files/MetaTrader 5/terminal64.exe"
//	  gateway_host: 127.0.0.1
//	  gateway_port: 18812
//	  timeout:
//	    connect: 30
//	    trade: 10
//	mt4:
//	  bridge_port: 7788
//	  ea_name: MT4Bridge
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TradingPlatformEnv is the environment variable that overrides the
// trading_platform selector from the configuration file.
const TradingPlatformEnv = "TRADING_PLATFORM"

// Config is the top-level mtlink configuration.
type Config struct {
	// TradingPlatform selects the active platform ("mt5" or "mt4",
	// case-insensitive). Overridden by the TRADING_PLATFORM env var.
	TradingPlatform string `yaml:"trading_platform" json:"trading_platform"`

	// MT5 configures the platform-5 family connector
	MT5 PlatformConfig `yaml:"mt5" json:"mt5"`

	// MT4 configures the platform-4 family connector
	MT4 PlatformConfig `yaml:"mt4" json:"mt4"`

	// Logging configures the structured logger
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PlatformConfig carries the settings one platform variant recognizes.
// The struct is shared across families; each variant reads only the
// fields its driver understands and never mutates the value it is given.
type PlatformConfig struct {
	// TerminalPath is the terminal executable path (optional; the
	// gateway or bridge attaches to a running terminal when empty)
	TerminalPath string `yaml:"terminal_path" json:"terminal_path"`

	// GatewayHost is the terminal gateway host (platform-5 family)
	GatewayHost string `yaml:"gateway_host" json:"gateway_host"`
	// GatewayPort is the terminal gateway port (platform-5 family)
	GatewayPort int `yaml:"gateway_port" json:"gateway_port"`

	// BridgePort is the expert-advisor bridge port (platform-4 family)
	BridgePort int `yaml:"bridge_port" json:"bridge_port"`
	// EAName is the expert advisor the bridge handshake addresses
	// (platform-4 family)
	EAName string `yaml:"ea_name" json:"ea_name"`

	// Timeout carries the driver timeout values, in seconds
	Timeout TimeoutConfig `yaml:"timeout" json:"timeout"`
}

// TimeoutConfig carries driver timeouts in whole seconds, matching what the
// terminal libraries accept.
type TimeoutConfig struct {
	// Connect is the session establishment timeout
	Connect int `yaml:"connect" json:"connect"`
	// Trade is the per-operation timeout
	Trade int `yaml:"trade" json:"trade"`
}

// ConnectTimeout returns the connect timeout as a duration.
func (t TimeoutConfig) ConnectTimeout() time.Duration {
	return time.Duration(t.Connect) * time.Second
}

// TradeTimeout returns the trade timeout as a duration.
func (t TimeoutConfig) TradeTimeout() time.Duration {
	return time.Duration(t.Trade) * time.Second
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level sets logging verbosity (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`
	// Encoding selects json or console output
	Encoding string `yaml:"encoding" json:"encoding"`
	// Development enables colored console output and stacktraces
	Development bool `yaml:"development" json:"development"`
}

// Default returns a configuration with the defaults the original terminals
// ship with: gateway on localhost, bridge EA on port 7788, 30s connect and
// 10s trade timeouts.
func Default() *Config {
	return &Config{
		TradingPlatform: "mt5",
		MT5: PlatformConfig{
			GatewayHost: "127.0.0.1",
			GatewayPort: 18812,
			Timeout:     TimeoutConfig{Connect: 30, Trade: 10},
		},
		MT4: PlatformConfig{
			BridgePort: 7788,
			EAName:     "MT4Bridge",
			Timeout:    TimeoutConfig{Connect: 30, Trade: 10},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Load reads a YAML configuration file, substitutes ${ENV_VAR} references,
// applies defaults for unset fields, resolves the TRADING_PLATFORM override,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyOverrides resolves environment overrides. The environment variable
// wins over the file so platform switches do not require config edits.
func (c *Config) applyOverrides() {
	if env := strings.TrimSpace(os.Getenv(TradingPlatformEnv)); env != "" {
		c.TradingPlatform = env
	}
	c.TradingPlatform = strings.ToLower(strings.TrimSpace(c.TradingPlatform))
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.TradingPlatform == "" {
		return fmt.Errorf("trading_platform is required")
	}
	if err := validatePort("mt5.gateway_port", c.MT5.GatewayPort); err != nil {
		return err
	}
	if err := validatePort("mt4.bridge_port", c.MT4.BridgePort); err != nil {
		return err
	}
	for name, t := range map[string]TimeoutConfig{"mt5": c.MT5.Timeout, "mt4": c.MT4.Timeout} {
		if t.Connect <= 0 {
			return fmt.Errorf("%s.timeout.connect must be positive", name)
		}
		if t.Trade <= 0 {
			return fmt.Errorf("%s.timeout.trade must be positive", name)
		}
	}
	return nil
}

func validatePort(field string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s must be between 0 and 65535", field)
	}
	return nil
}

// Platform returns the configuration section for the given platform
// identifier (case-insensitive).
func (c *Config) Platform(name string) (PlatformConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mt5":
		return c.MT5, nil
	case "mt4":
		return c.MT4, nil
	default:
		return PlatformConfig{}, fmt.Errorf("no configuration section for platform %q", name)
	}
}

// ActivePlatform returns the section selected by trading_platform.
func (c *Config) ActivePlatform() (PlatformConfig, error) {
	return c.Platform(c.TradingPlatform)
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}

		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		value := os.Getenv(varName)
		content = content[:start] + value + content[end+1:]
	}
	return content
}
