// Package config loads the HCL server configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/homepoker/internal/table"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config is the complete server configuration.
type Config struct {
	Server  Server  `hcl:"server,block"`
	Storage Storage `hcl:"storage,block"`
	History History `hcl:"history,block"`
	Events  Events  `hcl:"events,block"`
	Tables  []Table `hcl:"table,block"`
}

// Server holds listener and logging settings.
type Server struct {
	Address   string `hcl:"address,optional"`
	Port      int    `hcl:"port,optional"`
	LogLevel  string `hcl:"log_level,optional"`
	TimeBank  string `hcl:"time_bank,optional"`
	HandDelay string `hcl:"hand_delay,optional"`
	ChatLimit int    `hcl:"chat_history,optional"`
	// AuthURL, when set, is an identity service that exchanges bearer
	// tokens for player ids. Without it clients name themselves.
	AuthURL    string `hcl:"auth_url,optional"`
	AuthSecret string `hcl:"auth_secret,optional"`
}

// Storage selects the hand repository.
type Storage struct {
	Driver        string `hcl:"driver,optional"`
	PostgresDSN   string `hcl:"postgres_dsn,optional"`
	RedisAddr     string `hcl:"redis_addr,optional"`
	RedisPassword string `hcl:"redis_password,optional"`
	RedisDB       int    `hcl:"redis_db,optional"`
	CacheSize     int    `hcl:"cache_size,optional"`
}

// History configures the PHH archive.
type History struct {
	Enabled          bool   `hcl:"enabled,optional"`
	Dir              string `hcl:"dir,optional"`
	FlushInterval    string `hcl:"flush_interval,optional"`
	FlushHands       int    `hcl:"flush_hands,optional"`
	IncludeHoleCards bool   `hcl:"include_hole_cards,optional"`
	Variant          string `hcl:"variant,optional"`
}

// Events configures the NATS event publisher.
type Events struct {
	NatsURL string `hcl:"nats_url,optional"`
	Subject string `hcl:"subject_prefix,optional"`
}

// Table is a table opened at startup.
type Table struct {
	Name       string `hcl:"name,label"`
	MaxPlayers int    `hcl:"max_players,optional"`
	SmallBlind int    `hcl:"small_blind"`
	BigBlind   int    `hcl:"big_blind"`
	BuyInMin   int    `hcl:"buy_in_min,optional"`
	BuyInMax   int    `hcl:"buy_in_max,optional"`
}

// TableConfig converts the block into engine settings.
func (t Table) TableConfig() table.Config {
	return table.Config{
		SmallBlind: t.SmallBlind,
		BigBlind:   t.BigBlind,
		MaxSeats:   t.MaxPlayers,
		MinBuyIn:   t.BuyInMin,
		MaxBuyIn:   t.BuyInMax,
	}
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{
		Tables: []Table{{Name: "main", SmallBlind: 1, BigBlind: 2}},
	}
	c.applyDefaults()
	return c
}

// Load reads an HCL file. A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var c Config
	if diags := gohcl.DecodeBody(file.Body, nil, &c); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.TimeBank == "" {
		c.Server.TimeBank = "30s"
	}
	if c.Server.HandDelay == "" {
		c.Server.HandDelay = "3s"
	}
	if c.Server.ChatLimit == 0 {
		c.Server.ChatLimit = 100
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
	if c.Storage.CacheSize == 0 {
		c.Storage.CacheSize = 1024
	}

	if c.History.Dir == "" {
		c.History.Dir = "hands"
	}
	if c.History.FlushInterval == "" {
		c.History.FlushInterval = "10s"
	}
	if c.History.FlushHands == 0 {
		c.History.FlushHands = 100
	}
	if c.History.Variant == "" {
		c.History.Variant = "NT"
	}

	if c.Events.Subject == "" {
		c.Events.Subject = "homepoker"
	}

	for i := range c.Tables {
		t := &c.Tables[i]
		if t.MaxPlayers == 0 {
			t.MaxPlayers = 9
		}
		if t.BuyInMin == 0 {
			t.BuyInMin = t.BigBlind * 20
		}
		if t.BuyInMax == 0 {
			t.BuyInMax = t.BigBlind * 200
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	for name, d := range map[string]string{
		"time_bank":      c.Server.TimeBank,
		"hand_delay":     c.Server.HandDelay,
		"flush_interval": c.History.FlushInterval,
	} {
		if v, err := time.ParseDuration(d); err != nil || v < 0 {
			return fmt.Errorf("invalid %s: %q", name, d)
		}
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage: postgres_dsn is required for the postgres driver")
		}
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("storage: redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Storage.Driver)
	}

	seen := make(map[string]bool)
	for _, t := range c.Tables {
		if seen[t.Name] {
			return fmt.Errorf("table %s: defined more than once", t.Name)
		}
		seen[t.Name] = true
		if err := t.TableConfig().Validate(); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// TimeBank is the per-turn decision time.
func (c *Config) TimeBank() time.Duration { return mustDuration(c.Server.TimeBank) }

// HandDelay is the pause between hands.
func (c *Config) HandDelay() time.Duration { return mustDuration(c.Server.HandDelay) }

// FlushInterval is the archive flush period.
func (c *Config) FlushInterval() time.Duration { return mustDuration(c.History.FlushInterval) }

// mustDuration parses a duration already checked by Validate.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
