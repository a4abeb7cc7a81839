// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/keygate/internal/domain"
)

const envPrefix = "KEYGATE__"

type AppConfig struct {
	Config *domain.Config
	viper  *viper.Viper

	configDir string
}

// New loads configuration from the given path (a directory containing
// config.toml, or a direct path to a .toml file). A missing file is fine;
// defaults and KEYGATE__ environment variables still apply.
func New(configPath string) (*AppConfig, error) {
	c := &AppConfig{
		viper:  viper.New(),
		Config: &domain.Config{},
	}

	c.defaults()

	c.viper.SetEnvPrefix(strings.TrimSuffix(envPrefix, "_"))
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.viper.AutomaticEnv()

	if err := c.load(configPath); err != nil {
		return nil, err
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	c.watch()

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "localhost")
	c.viper.SetDefault("port", 8443)
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("license.defaultDurationDays", 30)
	c.viper.SetDefault("license.defaultMaxActivations", 3)
	c.viper.SetDefault("httpTimeouts.readTimeout", 60)
	c.viper.SetDefault("httpTimeouts.writeTimeout", 120)
	c.viper.SetDefault("httpTimeouts.idleTimeout", 180)
}

func (c *AppConfig) load(configPath string) error {
	if configPath == "" {
		configPath = defaultConfigDir()
	}

	if strings.HasSuffix(configPath, ".toml") {
		c.configDir = filepath.Dir(configPath)
		c.viper.SetConfigFile(configPath)
	} else {
		c.configDir = configPath
		c.viper.SetConfigName("config")
		c.viper.SetConfigType("toml")
		c.viper.AddConfigPath(configPath)
	}

	if err := c.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	return nil
}

// watch re-applies the log level when the config file changes on disk.
// Nothing else is reloaded at runtime, in particular not the signing keys.
func (c *AppConfig) watch() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		var updated domain.Config
		if err := c.viper.Unmarshal(&updated); err != nil {
			log.Error().Err(err).Msg("Failed to reload config")
			return
		}

		if updated.LogLevel != c.Config.LogLevel {
			c.Config.LogLevel = updated.LogLevel
			c.ApplyLogConfig()
			log.Info().Str("logLevel", c.Config.LogLevel).Msg("Log level updated from config file")
		}
	})
	c.viper.WatchConfig()
}

// ApplyLogConfig sets the global log level and output from the config.
func (c *AppConfig) ApplyLogConfig() {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Config.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.Config.LogPath != "" {
		f, err := os.OpenFile(c.Config.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Error().Err(err).Str("logPath", c.Config.LogPath).Msg("Failed to open log file, keeping stderr")
			return
		}
		log.Logger = log.Output(f)
	}
}

// GetDatabasePath returns the sqlite file location: dataDir when set,
// otherwise next to the config file.
func (c *AppConfig) GetDatabasePath() string {
	if c.Config.DataDir != "" {
		return filepath.Join(c.Config.DataDir, "keygate.db")
	}
	return filepath.Join(c.configDir, "keygate.db")
}

// GetSigningKeyPaths returns the PEM locations, defaulting to the config
// directory when unset.
func (c *AppConfig) GetSigningKeyPaths() (privateKey, publicKey string) {
	privateKey = c.Config.Signing.PrivateKeyFile
	if privateKey == "" {
		privateKey = filepath.Join(c.configDir, "private_key.pem")
	}
	publicKey = c.Config.Signing.PublicKeyFile
	if publicKey == "" {
		publicKey = filepath.Join(c.configDir, "public_key.pem")
	}
	return privateKey, publicKey
}

func defaultConfigDir() string {
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "keygate")
	}
	return "."
}

// WriteDefaultConfig writes a commented default config.toml. An existing
// file is left untouched.
func WriteDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		log.Info().Str("path", configPath).Msg("Config file already exists, skipping")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Str("path", configPath).Msg("Wrote default config file")
	return nil
}

const defaultConfigTemplate = `# config.toml

# Hostname / IP
#
host = "localhost"

# Port
#
port = 8443

# Log level
#
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
#
logLevel = "INFO"

# Log path
#
# Optional. Log to file instead of stderr.
#
#logPath = "keygate.log"

# Data directory
#
# Optional. Database location, defaults to the config directory.
#
#dataDir = "/var/lib/keygate"

[tls]
# Serve HTTPS when both files are set.
#
#certFile = "cert.pem"
#keyFile = "key.pem"

[signing]
# RSA keypair for license tokens, generate with: keygate generate-keys
#
#privateKeyFile = "private_key.pem"
#publicKeyFile = "public_key.pem"

[license]
# Issuance defaults applied when a request omits them.
#
defaultDurationDays = 30
defaultMaxActivations = 3

[httpTimeouts]
readTimeout = 60
writeTimeout = 120
idleTimeout = 180
`
