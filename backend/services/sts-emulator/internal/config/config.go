package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "stsemulator/backend/libs/config"
	"stsemulator/backend/services/sts-emulator/internal/injection"
	"stsemulator/backend/services/sts-emulator/internal/settings"
	"stsemulator/backend/services/sts-emulator/internal/tally"
)

// EmulatorConfig is the tally listener and the emulated switcher.
type EmulatorConfig struct {
	Host      string `yaml:"host" env:"STS_HOST"`
	Port      int    `yaml:"port" env:"STS_PORT"`
	Model     string `yaml:"model" env:"STS_MODEL"`
	Username  string `yaml:"username" env:"STS_USERNAME"`
	Password  string `yaml:"password" env:"STS_PASSWORD"`
	AutoStart bool   `yaml:"autoStart" env:"STS_AUTO_START"`
}

// TallyConfig seeds the cycling flags.
type TallyConfig struct {
	AutoCycle     bool          `yaml:"autoCycle" env:"STS_AUTO_CYCLE"`
	CycleInterval time.Duration `yaml:"cycleInterval" env:"STS_CYCLE_INTERVAL"`
	ClientRandom  bool          `yaml:"clientRandom" env:"STS_CLIENT_RANDOM"`
	ClientCycle   bool          `yaml:"clientCycle" env:"STS_CLIENT_CYCLE"`
}

// InjectionConfig seeds the error injection engine.
type InjectionConfig struct {
	ResponseDelay   time.Duration `yaml:"responseDelay" env:"STS_RESPONSE_DELAY"`
	JunkProbability float64       `yaml:"junkProbability" env:"STS_JUNK_PROBABILITY"`
	IgnoreCount     int           `yaml:"ignoreCount" env:"STS_IGNORE_COUNT"`
}

// ControlConfig is the control API and its single operator account.
type ControlConfig struct {
	Enabled      bool          `yaml:"enabled" env:"STS_CONTROL_ENABLED"`
	Addr         string        `yaml:"addr" env:"STS_CONTROL_ADDR"`
	Username     string        `yaml:"username" env:"STS_CONTROL_USERNAME"`
	Password     string        `yaml:"password" env:"STS_CONTROL_PASSWORD"`
	JWTSecret    string        `yaml:"jwtSecret" env:"STS_JWT_SECRET"`
	TokenTTL     time.Duration `yaml:"tokenTtl" env:"STS_TOKEN_TTL"`
	PingInterval time.Duration `yaml:"pingInterval" env:"STS_WS_PING_INTERVAL"`
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"STS_WS_WRITE_TIMEOUT"`
}

// RedisConfig enables the stats mirror when Addr is set.
type RedisConfig struct {
	Addr            string        `yaml:"addr" env:"STS_REDIS_ADDR"`
	Password        string        `yaml:"password" env:"STS_REDIS_PASSWORD"`
	DB              int           `yaml:"db" env:"STS_REDIS_DB"`
	TTL             time.Duration `yaml:"ttl" env:"STS_REDIS_TTL"`
	PublishInterval time.Duration `yaml:"publishInterval" env:"STS_REDIS_PUBLISH_INTERVAL"`
}

// DatabaseConfig enables the request journal when DSN is set.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn" env:"STS_POSTGRES_DSN"`
	MaxOpenConns int    `yaml:"maxOpenConns" env:"STS_POSTGRES_MAX_CONNS"`
}

// Config defines the emulator service configuration.
type Config struct {
	Emulator  EmulatorConfig  `yaml:"emulator"`
	Tally     TallyConfig     `yaml:"tally"`
	Injection InjectionConfig `yaml:"injection"`
	Control   ControlConfig   `yaml:"control"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Emulator: EmulatorConfig{
			Host:      settings.DefaultHost,
			Port:      settings.DefaultPort,
			Model:     tally.ModelV60HD.String(),
			Username:  settings.DefaultUsername,
			Password:  settings.DefaultPassword,
			AutoStart: true,
		},
		Tally: TallyConfig{
			AutoCycle:     true,
			CycleInterval: settings.DefaultCycleInterval,
		},
		Control: ControlConfig{
			Enabled:      true,
			Addr:         ":8090",
			Username:     "admin",
			Password:     "admin",
			TokenTTL:     12 * time.Hour,
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			TTL:             10 * time.Minute,
			PublishInterval: 5 * time.Second,
		},
	}
}

// Load applies the YAML file and environment on top of Default and validates the result.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate implements libconfig.Validator.
func (c *Config) Validate() error {
	if _, err := tally.ParseModel(c.Emulator.Model); err != nil {
		return err
	}
	if c.Emulator.Port < 0 || c.Emulator.Port > 65535 {
		return fmt.Errorf("emulator port %d out of range 0-65535", c.Emulator.Port)
	}
	if c.Tally.CycleInterval <= 0 {
		return errors.New("tally cycle interval must be positive")
	}
	if err := injection.ValidateResponseDelay(c.Injection.ResponseDelay); err != nil {
		return err
	}
	if err := injection.ValidateJunkProbability(c.Injection.JunkProbability); err != nil {
		return err
	}
	if err := injection.ValidateIgnoreCount(c.Injection.IgnoreCount); err != nil {
		return err
	}
	if c.Control.Enabled {
		if strings.TrimSpace(c.Control.Addr) == "" {
			return errors.New("control addr is required")
		}
		if strings.TrimSpace(c.Control.Username) == "" || c.Control.Password == "" {
			return errors.New("control username and password are required")
		}
	}
	return nil
}

// Model returns the parsed switcher model.
func (c *Config) Model() tally.Model {
	model, err := tally.ParseModel(c.Emulator.Model)
	if err != nil {
		return tally.ModelV60HD
	}
	return model
}

// SettingsOptions converts the emulator and tally sections into settings options.
func (c *Config) SettingsOptions() settings.Options {
	return settings.Options{
		Host:          c.Emulator.Host,
		Port:          c.Emulator.Port,
		Model:         c.Model(),
		Username:      c.Emulator.Username,
		Password:      c.Emulator.Password,
		AutoCycle:     c.Tally.AutoCycle,
		ClientRandom:  c.Tally.ClientRandom,
		ClientCycle:   c.Tally.ClientCycle,
		CycleInterval: c.Tally.CycleInterval,
	}
}

// ControlAddress returns the control API listen address, accepting a bare port.
func (c *Config) ControlAddress() string {
	addr := strings.TrimSpace(c.Control.Addr)
	if addr != "" && !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}

// RedisEnabled reports whether the stats mirror is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// DatabaseEnabled reports whether the request journal is configured.
func (c *Config) DatabaseEnabled() bool {
	return strings.TrimSpace(c.Database.DSN) != ""
}
