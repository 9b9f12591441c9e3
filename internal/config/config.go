package config

import (
	"io/fs"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Database struct {
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required"`
	SSLMode  string `mapstructure:"ssl-mode" validate:"required"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size" validate:"gt=0"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms" validate:"gt=0"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	PaymentEvents string `mapstructure:"payment-events" validate:"required"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
}

// Enabled reports whether a broker is configured. Without one the outbox is not written.
func (k Kafka) Enabled() bool {
	return k.Broker.URL != ""
}

type CallbackProducer struct {
	PollingIntervalMs  int `mapstructure:"polling-interval-ms" validate:"gt=0"`
	FetchSize          int `mapstructure:"fetch-size" validate:"gt=0"`
	RescheduleDelayMs  int `mapstructure:"reschedule-delay-ms" validate:"gt=0"`
	MaxPublishAttempts int `mapstructure:"max-publish-attempts" validate:"gt=0"`
}

type CallbackSender struct {
	TimeoutMs int `mapstructure:"timeout-ms" validate:"gt=0"`
}

type Callback struct {
	Producer CallbackProducer `mapstructure:"producer"`
	Sender   CallbackSender   `mapstructure:"sender"`
}

type Server struct {
	Port             string `mapstructure:"port" validate:"required"`
	RequestTimeoutMs int    `mapstructure:"request-timeout-ms" validate:"gt=0"`
	MaxBodyBytes     int64  `mapstructure:"max-body-bytes" validate:"gt=0"`
}

type Gateway struct {
	// UnsignedProviders lists provider slugs accepted without a signature scheme.
	UnsignedProviders []string `mapstructure:"unsigned-providers"`
}

type TBank struct {
	// TerminalPassword is used when an integration config carries no terminal_password.
	TerminalPassword string `mapstructure:"terminal-password"`
}

type Providers struct {
	TBank TBank `mapstructure:"tbank"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL   string `mapstructure:"url"`
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

type Config struct {
	Database  Database  `mapstructure:"database"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Callback  Callback  `mapstructure:"callback"`
	Server    Server    `mapstructure:"server"`
	Gateway   Gateway   `mapstructure:"gateway"`
	Providers Providers `mapstructure:"providers"`
	Metrics   Metrics   `mapstructure:"metrics"`
	Logs      Logs      `mapstructure:"logs"`
}

var defaults = map[string]any{
	"database.user":     "postgres",
	"database.password": "",
	"database.name":     "webhooks",
	"database.host":     "localhost",
	"database.port":     "5432",
	"database.ssl-mode": "disable",

	"kafka.writer.batch-size":       100,
	"kafka.writer.batch-timeout-ms": 100,
	"kafka.broker.url":              "",
	"kafka.topic.payment-events":    "payment-events",

	"callback.producer.polling-interval-ms":  500,
	"callback.producer.fetch-size":           200,
	"callback.producer.reschedule-delay-ms":  10_000,
	"callback.producer.max-publish-attempts": 3,
	"callback.sender.timeout-ms":             5_000,

	"server.port":               "8080",
	"server.request-timeout-ms": 15_000,
	"server.max-body-bytes":     1 << 20,

	"gateway.unsigned-providers":        []string{},
	"providers.tbank.terminal-password": "",

	"metrics.url":           "",
	"metrics.interval-ms":   10_000,
	"metrics.common-labels": "",

	"logs.url":   "",
	"logs.level": "info",
}

func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	if c.Callback.Sender.TimeoutMs >= c.Server.RequestTimeoutMs {
		return errors.Errorf("invalid config: callback.sender.timeout-ms (%d) must be shorter than server.request-timeout-ms (%d)",
			c.Callback.Sender.TimeoutMs, c.Server.RequestTimeoutMs)
	}

	return nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}
