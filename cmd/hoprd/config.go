package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the unified node configuration, loaded from a YAML/TOML/JSON
// file (whichever viper's SetConfigName/ReadInConfig finds), following the
// loader shape used elsewhere in the ecosystem for nested mapstructure-tagged
// configs. A HOPRD_-prefixed environment variable overrides a key only when
// the config file also sets that key: no defaults or environment bindings are
// registered with viper, so keys absent from the file are not looked up in
// the environment.
type Config struct {
	Node struct {
		Self        string `mapstructure:"self"`
		ReservedTag uint64 `mapstructure:"reserved_tag"`
	} `mapstructure:"node"`

	Storage struct {
		DBPath string `mapstructure:"db_path"`
	} `mapstructure:"storage"`

	Session struct {
		TagStart        uint64 `mapstructure:"tag_start"`
		TagEnd          uint64 `mapstructure:"tag_end"`
		MaxSessions     int    `mapstructure:"max_sessions"`
		IdleTTLSeconds  int    `mapstructure:"idle_ttl_seconds"`
		ForwardHops     int    `mapstructure:"forward_hops"`
		ReturnHops      int    `mapstructure:"return_hops"`
		DataMTU         uint32 `mapstructure:"data_mtu"`
	} `mapstructure:"session"`

	Chain struct {
		Self    string `mapstructure:"self"`
		Safe    string `mapstructure:"safe"`
		Channels          string `mapstructure:"channels"`
		Token             string `mapstructure:"token"`
		NetworkRegistry   string `mapstructure:"network_registry"`
		TicketPriceOracle string `mapstructure:"ticket_price_oracle"`
		WinProbOracle     string `mapstructure:"win_prob_oracle"`
	} `mapstructure:"chain"`

	Metrics struct {
		ListenAddr string `mapstructure:"listen_addr"`
	} `mapstructure:"metrics"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// defaultConfig returns the values a freshly-initialized node starts from;
// LoadConfig unmarshals the file and environment layers over this struct
// (viper itself is not given these values).
func defaultConfig() Config {
	var c Config
	c.Session.TagStart = 16
	c.Session.TagEnd = 1024
	c.Session.MaxSessions = 128
	c.Session.IdleTTLSeconds = 180
	c.Session.ForwardHops = 3
	c.Session.ReturnHops = 3
	c.Session.DataMTU = 400
	c.Metrics.ListenAddr = "127.0.0.1:9090"
	c.Log.Level = "info"
	return c
}

// LoadConfig reads path (if non-empty) plus a config file discovered on the
// usual search path, lets HOPRD_-prefixed environment variables override the
// keys that file sets, and unmarshals the result onto the defaults from
// defaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetConfigName("hoprd")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/hoprd")
	v.SetEnvPrefix("hoprd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return nil, fmt.Errorf("hoprd: reading config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("hoprd: parsing config: %w", err)
	}
	return &cfg, nil
}
