package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/api"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/core"
)

// Config is the node configuration. Every key can be set from the
// environment with the HIE_ prefix, e.g. HIE_AUTH_TOKEN or
// HIE_ENGINE_MAX_INCARNATIONS.
type Config struct {
	Engine core.Config    `mapstructure:"engine"`
	Server ServerConfig   `mapstructure:"server"`
	Auth   api.AuthConfig `mapstructure:"auth"`
	State  StateConfig    `mapstructure:"state"`
}

// ServerConfig holds listen addresses. An empty address disables the
// listener.
type ServerConfig struct {
	ArrowAddr   string `mapstructure:"arrow_addr"`
	ZmqAddr     string `mapstructure:"zmq_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// StateConfig selects the state backend.
type StateConfig struct {
	// BadgerDir is the badger directory; empty keeps state in memory.
	BadgerDir string `mapstructure:"badger_dir"`
	// CacheSize is the per-block snapshot cache; 0 disables it.
	CacheSize int `mapstructure:"cache_size"`
	// GenesisAccounts seeds that many accounts on start.
	GenesisAccounts int    `mapstructure:"genesis_accounts"`
	GenesisBalance  uint64 `mapstructure:"genesis_balance"`
}

func setDefaults(v *viper.Viper) {
	def := core.DefaultConfig()
	v.SetDefault("engine.concurrency", def.Concurrency)
	v.SetDefault("engine.max_incarnations", def.MaxIncarnations)
	v.SetDefault("engine.enable_deltas", def.EnableDeltas)
	v.SetDefault("engine.allow_sequential_fallback", def.AllowSequentialFallback)

	v.SetDefault("server.arrow_addr", "127.0.0.1:50051")
	v.SetDefault("server.zmq_addr", "")
	v.SetDefault("server.metrics_addr", "127.0.0.1:9090")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")

	v.SetDefault("state.badger_dir", "")
	v.SetDefault("state.cache_size", 65536)
	v.SetDefault("state.genesis_accounts", 0)
	v.SetDefault("state.genesis_balance", 1000000)
}

func loadConfig(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("HIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
	}

	config := new(Config)
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if err := config.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return config, nil
}
