// Package config loads msgsource settings from an optional YAML file,
// the environment and .env.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/luxfi/msgsource/pkg/logger"
	"github.com/luxfi/msgsource/pkg/transport"
)

const (
	// EnvPrefix prefixes every environment override, e.g.
	// MSGSOURCE_SERVER_ADDRESS
	EnvPrefix = "MSGSOURCE"

	DefaultServerAddress = "tcp://*:5555"
	DefaultClientAddress = "tcp://localhost:5555"
)

// Config is the decoded configuration
type Config struct {
	Environment string       `mapstructure:"environment" validate:"oneof=development production"`
	LogLevel    string       `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	Server      ServerConfig `mapstructure:"server"`
	Client      ClientConfig `mapstructure:"client"`
	NATS        NATSConfig   `mapstructure:"nats"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required,endpoint"`
	Echo    bool   `mapstructure:"echo"`
}

type ClientConfig struct {
	Address        string        `mapstructure:"address" validate:"required,endpoint"`
	ReceiveTimeout time.Duration `mapstructure:"receive_timeout" validate:"gte=0"`
}

// NATSConfig is only used by nats:// addresses
type NATSConfig struct {
	Name     string `mapstructure:"name"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// TransportOptions merges the NATS credentials into the transport defaults
func (c *Config) TransportOptions() *transport.Options {
	opts := transport.DefaultOptions()
	if c.NATS.Name != "" {
		opts.Name = c.NATS.Name
	}
	opts.Username = c.NATS.Username
	opts.Password = c.NATS.Password
	return opts
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("endpoint", func(fl validator.FieldLevel) bool {
		_, err := transport.ParseEndpoint(fl.Field().String())
		return err == nil
	})
	return v
}

// InitViperConfig prepares the global viper instance. path selects an
// explicit config file; empty searches the default locations.
func InitViperConfig(path string) error {
	return initViper(viper.GetViper(), path)
}

// Load decodes and validates the global viper configuration
func Load() (*Config, error) {
	return load(viper.GetViper())
}

func initViper(v *viper.Viper, path string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("msgsource")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.msgsource")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		logger.Debug("No config file found, using defaults and environment")
		return nil
	}

	logger.Debug("Loaded config", "file", v.ConfigFileUsed())
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "")
	v.SetDefault("server.address", DefaultServerAddress)
	v.SetDefault("server.echo", false)
	v.SetDefault("client.address", DefaultClientAddress)
	v.SetDefault("client.receive_timeout", time.Duration(0))
	v.SetDefault("nats.name", "")
	v.SetDefault("nats.username", "")
	v.SetDefault("nats.password", "")
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
