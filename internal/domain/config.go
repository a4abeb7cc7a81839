// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config represents the application configuration
type Config struct {
	Host         string        `toml:"host" mapstructure:"host"`
	Port         int           `toml:"port" mapstructure:"port"`
	LogLevel     string        `toml:"logLevel" mapstructure:"logLevel"`
	LogPath      string        `toml:"logPath" mapstructure:"logPath"`
	DataDir      string        `toml:"dataDir" mapstructure:"dataDir"`
	TLS          TLSConfig     `toml:"tls" mapstructure:"tls"`
	Signing      SigningConfig `toml:"signing" mapstructure:"signing"`
	License      LicenseConfig `toml:"license" mapstructure:"license"`
	HTTPTimeouts HTTPTimeouts  `toml:"httpTimeouts" mapstructure:"httpTimeouts"`
}

// TLSConfig enables HTTPS when both paths are set
type TLSConfig struct {
	CertFile string `toml:"certFile" mapstructure:"certFile"`
	KeyFile  string `toml:"keyFile" mapstructure:"keyFile"`
}

// SigningConfig points at the PEM keypair used to sign license tokens.
// The keypair is loaded once at startup; there is no hot-reload.
type SigningConfig struct {
	PrivateKeyFile string `toml:"privateKeyFile" mapstructure:"privateKeyFile"`
	PublicKeyFile  string `toml:"publicKeyFile" mapstructure:"publicKeyFile"`
}

// LicenseConfig holds issuance defaults applied when a request omits them
type LicenseConfig struct {
	DefaultDurationDays   int `toml:"defaultDurationDays" mapstructure:"defaultDurationDays"`
	DefaultMaxActivations int `toml:"defaultMaxActivations" mapstructure:"defaultMaxActivations"`
}

// HTTPTimeouts represents HTTP server timeout configuration
type HTTPTimeouts struct {
	ReadTimeout  int `toml:"readTimeout" mapstructure:"readTimeout"`   // seconds
	WriteTimeout int `toml:"writeTimeout" mapstructure:"writeTimeout"` // seconds
	IdleTimeout  int `toml:"idleTimeout" mapstructure:"idleTimeout"`   // seconds
}
