package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can say "5s" or
// "250ms". A bare integer still decodes as nanoseconds.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", node.Value)
	}
	*d = Duration(n)
	return nil
}

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Web       WebConfig       `yaml:"web"`
	Redis     RedisConfig     `yaml:"redis"`
	Messaging MessagingConfig `yaml:"messaging"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	// PasswordHash is the bcrypt hash of the single shared login
	// password. Generate one with `stockbench -hashpw <password>`.
	PasswordHash string `yaml:"password_hash"`
	// SecureCookies requires HTTPS for the session cookie. Off by
	// default since stockbench usually sits on a lab LAN.
	SecureCookies bool `yaml:"secure_cookies"`
}

type RedisConfig struct {
	// Enabled turns on the cross-instance event bridge. A single-node
	// deployment does not need it.
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type MessagingConfig struct {
	Enabled             bool        `yaml:"enabled"`
	Kafka               KafkaConfig `yaml:"kafka"`
	CommitsTopic        string      `yaml:"commits_topic"`
	OutboxDrainInterval Duration    `yaml:"outbox_drain_interval"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "stockbench.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "stockbench",
				User:     "stockbench",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			SessionSecret: "change-me-in-production",
			PasswordHash:  "",
			SecureCookies: false,
		},
		Redis: RedisConfig{
			Enabled: false,
			Address: "localhost:6379",
			DB:      0,
			Channel: "stockbench.events",
		},
		Messaging: MessagingConfig{
			Enabled: false,
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
			},
			CommitsTopic:        "stockbench.commits",
			OutboxDrainInterval: Duration(5 * time.Second),
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
