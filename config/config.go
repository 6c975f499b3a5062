package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MonitorAddress string `mapstructure:"monitor_address"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// GameConfig carries session tuning knobs. Zero values fall back to the
// defaults applied in LoadConfig.
type GameConfig struct {
	DefaultTurnTimeLimit time.Duration `mapstructure:"default_turn_time_limit"`
	AIThinkDelay         time.Duration `mapstructure:"ai_think_delay"`
	EvictionGrace        time.Duration `mapstructure:"eviction_grace"`
	MaxSessions          int           `mapstructure:"max_sessions"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if config.Game.AIThinkDelay == 0 {
		config.Game.AIThinkDelay = 500 * time.Millisecond
	}
	if config.Game.EvictionGrace == 0 {
		config.Game.EvictionGrace = 30 * time.Second
	}
	if config.Game.MaxSessions == 0 {
		config.Game.MaxSessions = 100
	}
	return
}
