// Package config loads service configuration from defaults, an optional
// config file, MIMIKA_* environment variables and command-line flags, in
// ascending precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Models  ModelsConfig  `mapstructure:"models"`
	Engines EnginesConfig `mapstructure:"engines"`
}

type ServerConfig struct {
	Host            string   `mapstructure:"host"`
	Port            int      `mapstructure:"port"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"`
}

// Addr joins host and port into a listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ModelsConfig struct {
	// HFToken authorizes downloads from gated repositories.
	HFToken string `mapstructure:"hf_token"`
}

type EnginesConfig struct {
	ORTLibraryPath   string `mapstructure:"ort_library_path"`
	CosyVoicePython  string `mapstructure:"cosyvoice_python"`
	CosyVoiceTimeout int    `mapstructure:"cosyvoice_timeout"`
	FFmpegPath       string `mapstructure:"ffmpeg_path"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			CORSOrigins:     nil,
			ShutdownTimeout: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
		Models: ModelsConfig{
			HFToken: "",
		},
		Engines: EnginesConfig{
			ORTLibraryPath:   "",
			CosyVoicePython:  "python3",
			CosyVoiceTimeout: 120,
			FFmpegPath:       "ffmpeg",
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("server-host", defaults.Server.Host, "HTTP bind host")
	fs.Int("server-port", defaults.Server.Port, "HTTP bind port")
	fs.StringSlice("server-cors-origins", defaults.Server.CORSOrigins, "Allowed CORS origins (comma separated)")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.String("log-level", defaults.Log.Level, "Log level (debug|info|warn|error)")
	fs.String("models-hf-token", defaults.Models.HFToken, "Hugging Face access token for gated repositories")
	fs.String("engines-ort-library-path", defaults.Engines.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("engines-cosyvoice-python", defaults.Engines.CosyVoicePython, "Python interpreter for the CosyVoice subprocess")
	fs.Int("engines-cosyvoice-timeout", defaults.Engines.CosyVoiceTimeout, "CosyVoice subprocess timeout in seconds")
	fs.String("engines-ffmpeg-path", defaults.Engines.FFmpegPath, "ffmpeg binary for mp3/m4b output")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("MIMIKA")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("server.host", "MIMIKA_BACKEND_HOST"); err != nil {
		return Config{}, fmt.Errorf("bind host env: %w", err)
	}
	if err := v.BindEnv("server.port", "MIMIKA_BACKEND_PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port env: %w", err)
	}
	if err := v.BindEnv("server.cors_origins", "MIMIKA_CORS_ORIGINS"); err != nil {
		return Config{}, fmt.Errorf("bind cors env: %w", err)
	}
	if err := v.BindEnv("models.hf_token", "MIMIKA_HF_TOKEN", "HF_TOKEN"); err != nil {
		return Config{}, fmt.Errorf("bind token env: %w", err)
	}
	if err := v.BindEnv("engines.ort_library_path", "MIMIKA_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("mimika")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.cors_origins", c.Server.CORSOrigins)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("models.hf_token", c.Models.HFToken)
	v.SetDefault("engines.ort_library_path", c.Engines.ORTLibraryPath)
	v.SetDefault("engines.cosyvoice_python", c.Engines.CosyVoicePython)
	v.SetDefault("engines.cosyvoice_timeout", c.Engines.CosyVoiceTimeout)
	v.SetDefault("engines.ffmpeg_path", c.Engines.FFmpegPath)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("server.host", "server-host")
	v.RegisterAlias("server.port", "server-port")
	v.RegisterAlias("server.cors_origins", "server-cors-origins")
	v.RegisterAlias("server.shutdown_timeout", "server-shutdown-timeout")
	v.RegisterAlias("log.level", "log-level")
	v.RegisterAlias("models.hf_token", "models-hf-token")
	v.RegisterAlias("engines.ort_library_path", "engines-ort-library-path")
	v.RegisterAlias("engines.cosyvoice_python", "engines-cosyvoice-python")
	v.RegisterAlias("engines.cosyvoice_timeout", "engines-cosyvoice-timeout")
	v.RegisterAlias("engines.ffmpeg_path", "engines-ffmpeg-path")
}
