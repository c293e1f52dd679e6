// Package config resolves server settings from defaults, an optional
// axiom.yaml, the environment and command-line flags, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/njchilds90/axiom-mcp/engine"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is the resolved configuration. It is a plain value; nothing in the
// server mutates it after Load.
type Config struct {
	// Engine is the resolved backend preference. EngineRaw is what was
	// configured, kept so an unrecognised value can be reported.
	Engine    engine.Preference `mapstructure:"-"`
	EngineRaw string            `mapstructure:"engine"`
	GiacPath  string            `mapstructure:"giac_path"`

	Transport string `mapstructure:"transport" validate:"oneof=stdio http"`
	Host      string `mapstructure:"host" validate:"required"`
	Port      int    `mapstructure:"port" validate:"min=1,max=65535"`

	LogLevel  string `mapstructure:"log_level" validate:"required"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=text json"`

	// RateLimit is requests per second admitted on the HTTP transport;
	// zero disables the limiter.
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`
	RateBurst int     `mapstructure:"rate_burst" validate:"min=1"`
}

// EngineRecognized reports whether EngineRaw named a known preference.
func (c Config) EngineRecognized() bool {
	_, ok := engine.ParsePreference(c.EngineRaw)
	return ok || c.EngineRaw == ""
}

// Addr is host:port for the HTTP transport.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// key -> environment variable and flag name.
var bindings = []struct {
	key, env, flag string
}{
	{"engine", "GIAC_ENGINE", "engine"},
	{"giac_path", "GIAC_PATH", "giac-path"},
	{"transport", "MCP_TRANSPORT", "transport"},
	{"host", "MCP_HOST", "host"},
	{"port", "MCP_PORT", "port"},
	{"log_level", "AXIOM_LOG_LEVEL", "log-level"},
	{"log_format", "AXIOM_LOG_FORMAT", "log-format"},
	{"rate_limit", "AXIOM_RATE_LIMIT", "rate-limit"},
	{"rate_burst", "AXIOM_RATE_BURST", "rate-burst"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine", string(engine.PreferAuto))
	v.SetDefault("giac_path", engine.DefaultGiacBinary)
	v.SetDefault("transport", TransportStdio)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 3000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("rate_limit", 50.0)
	v.SetDefault("rate_burst", 100)
}

// Options control where Load looks.
type Options struct {
	// File is an explicit config file. When empty, axiom.yaml is searched
	// for in SearchPaths.
	File string
	// SearchPaths defaults to the working directory and the user config
	// directory.
	SearchPaths []string
	// Flags, when set, override everything else for the flags the user
	// changed.
	Flags *pflag.FlagSet
}

var validate = validator.New()

// Load resolves the configuration.
func Load(opts Options) (Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, b := range bindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", b.env, err)
		}
		if opts.Flags == nil {
			continue
		}
		if f := opts.Flags.Lookup(b.flag); f != nil {
			if err := v.BindPFlag(b.key, f); err != nil {
				return Config{}, fmt.Errorf("bind --%s: %w", b.flag, err)
			}
		}
	}

	if err := readFile(v, opts); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Engine, _ = engine.ParsePreference(cfg.EngineRaw)
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readFile(v *viper.Viper, opts Options) error {
	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", opts.File, err)
		}
		return nil
	}

	paths := opts.SearchPaths
	if paths == nil {
		paths = []string{"."}
		if dir, err := os.UserConfigDir(); err == nil {
			paths = append(paths, filepath.Join(dir, "axiom"))
		}
	}
	v.SetConfigName("axiom")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// RegisterFlags declares every configurable flag on fs with the default
// values, for use with Options.Flags.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("engine", string(engine.PreferAuto), "symbolic backend: native, wasm or auto")
	fs.String("giac-path", engine.DefaultGiacBinary, "path to the giac binary")
	fs.String("transport", TransportStdio, "MCP transport: stdio or http")
	fs.String("host", "127.0.0.1", "HTTP listen host")
	fs.Int("port", 3000, "HTTP listen port")
	fs.String("log-level", "info", "log level")
	fs.String("log-format", "text", "log format: text or json")
	fs.Float64("rate-limit", 50, "HTTP requests per second, 0 disables the limiter")
	fs.Int("rate-burst", 100, "HTTP request burst")
}
