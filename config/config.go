// Package config loads the wallet configuration from defaults, an optional
// YAML file, the environment and command-line flags, in that order.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/carteira/internal/services/ledger"
	"gopkg.in/yaml.v3"
)

const (
	DriverPebble = "pebble"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"

	ProviderAwesomeAPI  = "awesomeapi"
	ProviderBinance     = "binance"
	ProviderBybit       = "bybit"
	ProviderHyperliquid = "hyperliquid"
	ProviderStatic      = "static"
)

type Config struct {
	// Identity preselected in the console, optional.
	Identity string
	Fiat     string
	Store    StoreConfig
	Journal  string
	Quotes   QuotesConfig
	Rules    ledger.Rules
	Log      LogConfig
	HTTP     HTTPConfig
}

type StoreConfig struct {
	Driver string
	Path   string
}

type QuotesConfig struct {
	Provider string
	BaseURL  string
	// StaticPrices feeds the static provider.
	StaticPrices map[string]decimal.Decimal
	// HyperliquidKey signs the Hyperliquid handle; empty means a throwaway key.
	HyperliquidKey string
}

type LogConfig struct {
	Level string
	File  string
}

// HTTPConfig controls the read-only dashboard. An empty Addr disables it.
type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
	// TLSDomains switches the dashboard to ACME certificates for these hosts.
	TLSDomains []string
	CertCache  string
}

// fileConfig is the YAML shape. Amounts stay strings so they are parsed as decimals.
type fileConfig struct {
	Identity                string            `yaml:"identity"`
	Fiat                    string            `yaml:"fiat"`
	Assets                  []string          `yaml:"assets"`
	MinimumTransactionValue string            `yaml:"minimum_transaction_value"`
	InitialBalanceMin       string            `yaml:"initial_balance_min"`
	InitialBalanceMax       string            `yaml:"initial_balance_max"`
	QuoteTimeout            string            `yaml:"quote_timeout"`
	RecentTransfers         string            `yaml:"recent_transfers"`
	JournalDir              string            `yaml:"journal_dir"`
	Store                   fileStore         `yaml:"store"`
	Quotes                  fileQuotes        `yaml:"quotes"`
	Log                     fileLog           `yaml:"log"`
	HTTP                    fileHTTP          `yaml:"http"`
	StaticPrices            map[string]string `yaml:"static_prices"`
}

type fileStore struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type fileQuotes struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
}

type fileHTTP struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	TLSDomains     []string `yaml:"tls_domains"`
	CertCache      string   `yaml:"cert_cache"`
}

type fileLog struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Fiat:    "BRL",
		Store:   StoreConfig{Driver: DriverPebble, Path: "./data/ledger"},
		Journal: "./wal/ledger",
		Quotes:  QuotesConfig{Provider: ProviderAwesomeAPI},
		Rules:   ledger.DefaultRules(),
		Log:     LogConfig{Level: "info", File: "./logs/carteira.log"},
	}
}

// Get loads .env if present and builds the configuration from os.Args.
func Get() (Config, error) {
	_ = godotenv.Load()
	return Load(os.Args[1:], os.Getenv)
}

// Load builds the configuration from args and the getenv lookup.
func Load(args []string, getenv func(string) string) (Config, error) {
	fs := flag.NewFlagSet("carteira", flag.ContinueOnError)
	path := fs.String("config", "", "path to yaml config")
	identity := fs.String("identity", "", "wallet identity to open the console with")
	driver := fs.String("store", "", "ledger store driver: pebble, sqlite or memory")
	storePath := fs.String("store-path", "", "ledger store location")
	provider := fs.String("provider", "", "quote provider: awesomeapi, binance, bybit, hyperliquid or static")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn or error")
	httpAddr := fs.String("http", "", "dashboard listen address, e.g. :8080")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if *path != "" {
		fc, err := readYaml(*path)
		if err != nil {
			return Config{}, err
		}
		if err := fc.apply(&cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg, getenv)

	if *identity != "" {
		cfg.Identity = *identity
	}
	if *driver != "" {
		cfg.Store.Driver = *driver
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if *provider != "" {
		cfg.Quotes.Provider = *provider
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.Quotes.Provider = strings.ToLower(strings.TrimSpace(cfg.Quotes.Provider))
	cfg.Fiat = strings.ToUpper(strings.TrimSpace(cfg.Fiat))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readYaml(path string) (fileConfig, error) {
	var fc fileConfig

	f, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(f, &fc); err != nil {
		return fc, fmt.Errorf("incorrect yaml config %s: %w", path, err)
	}
	return fc, nil
}

func (fc fileConfig) apply(cfg *Config) error {
	if fc.Identity != "" {
		cfg.Identity = fc.Identity
	}
	if fc.Fiat != "" {
		cfg.Fiat = fc.Fiat
	}
	if len(fc.Assets) > 0 {
		cfg.Rules.SupportedAssets = fc.Assets
	}

	var err error
	if fc.MinimumTransactionValue != "" {
		if cfg.Rules.MinimumTransactionValue, err = decimal.NewFromString(fc.MinimumTransactionValue); err != nil {
			return fmt.Errorf("incorrect 'minimum_transaction_value' param in yaml config (correct format is 0.01), error: %w", err)
		}
	}
	if fc.InitialBalanceMin != "" {
		if cfg.Rules.InitialBalanceMin, err = decimal.NewFromString(fc.InitialBalanceMin); err != nil {
			return fmt.Errorf("incorrect 'initial_balance_min' param in yaml config (correct format is 1000), error: %w", err)
		}
	}
	if fc.InitialBalanceMax != "" {
		if cfg.Rules.InitialBalanceMax, err = decimal.NewFromString(fc.InitialBalanceMax); err != nil {
			return fmt.Errorf("incorrect 'initial_balance_max' param in yaml config (correct format is 10000), error: %w", err)
		}
	}
	if fc.QuoteTimeout != "" {
		if cfg.Rules.QuoteTimeout, err = time.ParseDuration(fc.QuoteTimeout); err != nil {
			return fmt.Errorf("incorrect 'quote_timeout' param in yaml config (correct format is 5s), error: %w", err)
		}
	}
	if fc.RecentTransfers != "" {
		if cfg.Rules.RecentTransfers, err = strconv.Atoi(fc.RecentTransfers); err != nil {
			return fmt.Errorf("incorrect 'recent_transfers' param in yaml config (correct format is 5), error: %w", err)
		}
	}

	if fc.JournalDir != "" {
		cfg.Journal = fc.JournalDir
	}
	if fc.Store.Driver != "" {
		cfg.Store.Driver = fc.Store.Driver
	}
	if fc.Store.Path != "" {
		cfg.Store.Path = fc.Store.Path
	}
	if fc.Quotes.Provider != "" {
		cfg.Quotes.Provider = fc.Quotes.Provider
	}
	if fc.Quotes.BaseURL != "" {
		cfg.Quotes.BaseURL = fc.Quotes.BaseURL
	}
	if fc.Log.Level != "" {
		cfg.Log.Level = fc.Log.Level
	}
	if fc.Log.File != "" {
		cfg.Log.File = fc.Log.File
	}
	if fc.HTTP.Addr != "" {
		cfg.HTTP.Addr = fc.HTTP.Addr
	}
	if len(fc.HTTP.AllowedOrigins) > 0 {
		cfg.HTTP.AllowedOrigins = fc.HTTP.AllowedOrigins
	}
	if len(fc.HTTP.TLSDomains) > 0 {
		cfg.HTTP.TLSDomains = fc.HTTP.TLSDomains
	}
	if fc.HTTP.CertCache != "" {
		cfg.HTTP.CertCache = fc.HTTP.CertCache
	}

	if len(fc.StaticPrices) > 0 {
		cfg.Quotes.StaticPrices = make(map[string]decimal.Decimal, len(fc.StaticPrices))
		for asset, raw := range fc.StaticPrices {
			price, err := decimal.NewFromString(raw)
			if err != nil {
				return fmt.Errorf("incorrect static price for %s in yaml config: %w", asset, err)
			}
			cfg.Quotes.StaticPrices[strings.ToUpper(asset)] = price
		}
	}

	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("CARTEIRA_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := getenv("CARTEIRA_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := getenv("CARTEIRA_JOURNAL_DIR"); v != "" {
		cfg.Journal = v
	}
	if v := getenv("CARTEIRA_QUOTES_PROVIDER"); v != "" {
		cfg.Quotes.Provider = v
	}
	if v := getenv("CARTEIRA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("CARTEIRA_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := getenv("HYPERLIQUID_PRIVATE_KEY"); v != "" {
		cfg.Quotes.HyperliquidKey = v
	}
}

// Validate checks the values ledger.NewEngine does not check itself.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverPebble, DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for driver %s", c.Store.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}

	switch c.Quotes.Provider {
	case ProviderAwesomeAPI, ProviderBinance, ProviderBybit, ProviderHyperliquid:
	case ProviderStatic:
		if len(c.Quotes.StaticPrices) == 0 {
			return fmt.Errorf("static provider requires 'static_prices' in yaml config")
		}
	default:
		return fmt.Errorf("unsupported quote provider %q", c.Quotes.Provider)
	}

	if c.Fiat == "" {
		return fmt.Errorf("fiat currency is required")
	}
	if len(c.HTTP.TLSDomains) > 0 && c.HTTP.Addr == "" {
		return fmt.Errorf("tls domains require an http address")
	}
	if c.Rules.RecentTransfers < 0 {
		return fmt.Errorf("recent transfers must not be negative, got %d", c.Rules.RecentTransfers)
	}
	return nil
}
