// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/keygate/internal/config"
	"github.com/autobrr/keygate/internal/database"
	"github.com/autobrr/keygate/internal/hwaddr"
	"github.com/autobrr/keygate/internal/license"
	"github.com/autobrr/keygate/internal/models"
)

var Version = "dev"

func main() {
	var rootCmd = &cobra.Command{
		Use:   "keygate",
		Short: "A machine-bound license server",
		Long: `keygate - issues and validates hardware-bound software licenses.
Devices are identified by MAC address; licenses are short human-typeable
keys derived from signed tokens.`,
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.Version = Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunGenerateKeysCommand())
	rootCmd.AddCommand(RunAPIKeyCommand())
	rootCmd.AddCommand(RunDeviceCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var configDir string

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the license server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/keygate/). Can also be a direct path to a .toml file")

	command.Run = func(cmd *cobra.Command, args []string) {
		runServer(configDir)
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of keygate",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.WriteDefaultConfig(resolveConfigPath(configDir))
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path")

	return command
}

func RunGenerateKeysCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-keys",
		Short: "Generate the RSA keypair used to sign license tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(configDir)
			if err != nil {
				return err
			}

			privateKey, publicKey := cfg.GetSigningKeyPaths()
			if err := license.GenerateKeyPair(privateKey, publicKey); err != nil {
				return err
			}

			fmt.Printf("Wrote %s and %s\n", privateKey, publicKey)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path")

	return command
}

func RunAPIKeyCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "apikey",
		Short: "Manage administrative API keys",
	}

	command.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory path")

	create := &cobra.Command{
		Use:   "create [name]",
		Short: "Create an API key for the administrative API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			rawKey, apiKey, err := models.NewAPIKeyStore(db.Conn()).Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Created API key %q (id %d)\n", apiKey.Name, apiKey.ID)
			fmt.Printf("Key (shown once): %s\n", rawKey)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			keys, err := models.NewAPIKeyStore(db.Conn()).List(cmd.Context())
			if err != nil {
				return err
			}

			for _, key := range keys {
				fmt.Printf("%d\t%s\t%s\n", key.ID, key.Name, key.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	command.AddCommand(create)
	command.AddCommand(list)

	return command
}

func RunDeviceCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "device",
		Short: "Manage the device allowlist",
	}

	command.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory path")

	add := &cobra.Command{
		Use:   "add [mac-address]",
		Short: "Approve a device for license issuance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			macAddress, err := hwaddr.Normalize(args[0])
			if err != nil {
				return err
			}

			db, err := openDatabase(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			allowlist, err := models.NewDeviceAllowlistStore(db.Conn())
			if err != nil {
				return err
			}

			if err := allowlist.Add(cmd.Context(), macAddress); err != nil {
				return err
			}

			fmt.Printf("Approved %s\n", macAddress)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove [mac-address]",
		Short: "Remove a device from the allowlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			macAddress, err := hwaddr.Normalize(args[0])
			if err != nil {
				return err
			}

			db, err := openDatabase(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			allowlist, err := models.NewDeviceAllowlistStore(db.Conn())
			if err != nil {
				return err
			}

			if err := allowlist.Remove(cmd.Context(), macAddress); err != nil {
				return err
			}

			fmt.Printf("Removed %s\n", macAddress)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List approved devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			allowlist, err := models.NewDeviceAllowlistStore(db.Conn())
			if err != nil {
				return err
			}

			devices, err := allowlist.List(cmd.Context())
			if err != nil {
				return err
			}

			for _, device := range devices {
				fmt.Printf("%s\t%s\n", device.MACAddress, device.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	command.AddCommand(add)
	command.AddCommand(remove)
	command.AddCommand(list)

	return command
}

func openDatabase(configDir string) (*database.DB, error) {
	cfg, err := config.New(configDir)
	if err != nil {
		return nil, err
	}
	return database.New(cfg.GetDatabasePath())
}

func resolveConfigPath(configDir string) string {
	if configDir == "" {
		if userConfigDir, err := os.UserConfigDir(); err == nil {
			configDir = filepath.Join(userConfigDir, "keygate")
		} else {
			configDir = "."
		}
	}
	if filepath.Ext(configDir) == ".toml" {
		return configDir
	}
	return filepath.Join(configDir, "config.toml")
}
