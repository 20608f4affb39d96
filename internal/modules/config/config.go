package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	exchangeKeyENV    = "EXCHANGE_KEY"
	exchangeSecretENV = "EXCHANGE_SECRET"
	exchangePassENV   = "EXCHANGE_PASSPHRASE"
)

// Config ...
type Config struct {
	Product  string `yaml:"product"`
	LogLevel string `yaml:"log_level"`
	DB       string `yaml:"db_dsn"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Feed struct {
		URL string `yaml:"url"`
	} `yaml:"feed"`

	Exchange struct {
		URL         string `yaml:"url"`
		UserFeedURL string `yaml:"user_feed_url"`
		Key         string `yaml:"key"`
		Secret      string `yaml:"secret"`
		Passphrase  string `yaml:"passphrase"`
	} `yaml:"exchange"`

	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	Health struct {
		Addr string `yaml:"addr"`
	} `yaml:"health"`

	Strategy StrategySettings `yaml:"strategy"`
}

// StrategySettings — вся поверхность сигнального/торгового контура.
type StrategySettings struct {
	// интервал сэмплирования стакана (один тик = один снапшот)
	SampleInterval time.Duration `yaml:"sample_interval"`
	// ёмкость кольцевого буфера снапшотов
	RecordSize int `yaml:"record_size"`
	// окна выравнивания регрессии
	Lags  int `yaml:"lags"`
	Delay int `yaml:"delay"`
	// порог срабатывания по EFPC
	Threshold float64 `yaml:"threshold"`
	// доля баланса котируемой валюты на один ордер, (0,1]
	RiskTolerance float64 `yaml:"risk_tolerance"`
	// минимальный размер ордера на бирже
	MinOrderSize float64 `yaml:"min_order_size"`

	PricePrecision int `yaml:"price_precision"`
	SizePrecision  int `yaml:"size_precision"`

	QuoteCurrency string `yaml:"quote_currency"` // например "USD"
	BaseCurrency  string `yaml:"base_currency"`  // например "BTC"

	// таймаут на один вызов биржевого API
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		Product:  getenvDefault("PRODUCT", "BTC-USD"),
		LogLevel: getenvDefault("LOG_LEVEL", "info"),
		Strategy: StrategySettings{
			SampleInterval: durationFromEnv("SAMPLE_INTERVAL", "500ms"),
			RecordSize:     intFromEnv("RECORD_SIZE", 1620),
			Lags:           intFromEnv("LAGS", 5),
			Delay:          intFromEnv("DELAY", 20),
			Threshold:      floatFromEnv("THRESHOLD", 0.2),
			RiskTolerance:  floatFromEnv("RISK_TOLERANCE", 0.1),
			MinOrderSize:   floatFromEnv("MIN_ORDER_SIZE", 0.001),
			PricePrecision: intFromEnv("PRICE_PRECISION", 6),
			SizePrecision:  intFromEnv("SIZE_PRECISION", 6),
			QuoteCurrency:  getenvDefault("QUOTE_CURRENCY", "USD"),
			BaseCurrency:   getenvDefault("BASE_CURRENCY", "BTC"),
			RequestTimeout: durationFromEnv("REQUEST_TIMEOUT", "10s"),
		},
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if v := os.Getenv(exchangeKeyENV); v != "" {
		config.Exchange.Key = v
	}
	if v := os.Getenv(exchangeSecretENV); v != "" {
		config.Exchange.Secret = v
	}
	if v := os.Getenv(exchangePassENV); v != "" {
		config.Exchange.Passphrase = v
	}

	if err := config.Strategy.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (s StrategySettings) validate() error {
	if s.RecordSize <= 0 {
		return fmt.Errorf("record_size must be positive, got %d", s.RecordSize)
	}
	if s.Lags < 0 || s.Delay < 0 {
		return fmt.Errorf("lags/delay must be non-negative, got %d/%d", s.Lags, s.Delay)
	}
	if s.Lags+s.Delay >= s.RecordSize {
		return fmt.Errorf("lags+delay (%d) must be smaller than record_size (%d)", s.Lags+s.Delay, s.RecordSize)
	}
	if s.RiskTolerance <= 0 || s.RiskTolerance > 1 {
		return fmt.Errorf("risk_tolerance must be in (0,1], got %f", s.RiskTolerance)
	}
	if s.SampleInterval <= 0 {
		return fmt.Errorf("sample_interval must be positive")
	}
	return nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
