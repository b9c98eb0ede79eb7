package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Node   NodeConfig   `mapstructure:"node"`
	Mining MiningConfig `mapstructure:"mining"`
	Alerts AlertsConfig `mapstructure:"alerts"`
}

type NodeConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	ListenAddr string `mapstructure:"listen_addr"`
}

type MiningConfig struct {
	Difficulty int `mapstructure:"difficulty"`
	Workers    int `mapstructure:"workers"`
}

type AlertsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SlackWebhook string `mapstructure:"slack_webhook"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if expanded := os.ExpandEnv(val); expanded != val {
			v.Set(key, expanded)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir is required")
	}

	if c.Node.ListenAddr == "" {
		c.Node.ListenAddr = ":8080"
	}

	// Expected mining attempts grow as 16^difficulty; anything past 6 stalls
	// every mutation.
	if c.Mining.Difficulty < 0 || c.Mining.Difficulty > 6 {
		return fmt.Errorf("mining.difficulty must be between 0 and 6, got %d", c.Mining.Difficulty)
	}

	if c.Mining.Workers == 0 {
		c.Mining.Workers = 4
	}
	if c.Mining.Workers < 1 {
		return fmt.Errorf("mining.workers must be at least 1, got %d", c.Mining.Workers)
	}

	return nil
}
