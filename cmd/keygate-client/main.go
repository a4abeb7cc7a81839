// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/autobrr/keygate/internal/client"
	"github.com/autobrr/keygate/internal/hwaddr"
)

var Version = "dev"

func main() {
	var rootCmd = &cobra.Command{
		Use:   "keygate-client",
		Short: "keygate-client requests and validates machine-bound licenses",
	}
	rootCmd.Version = Version

	rootCmd.AddCommand(RunRequestCommand())
	rootCmd.AddCommand(RunValidateCommand())
	rootCmd.AddCommand(RunStatusCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultLicensePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "license.json"
	}
	return filepath.Join(home, ".config", "keygate", "license.json")
}

// resolveMAC returns the override when set, otherwise the first
// hardware address found on a non-loopback interface.
func resolveMAC(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	mac, err := hwaddr.FromInterfaces()
	if err != nil {
		return "", errors.Wrap(err, "could not detect a MAC address, pass one with --mac")
	}
	return mac, nil
}

func RunRequestCommand() *cobra.Command {
	var (
		serverURL      string
		caFile         string
		licenseFile    string
		macOverride    string
		durationDays   int
		maxActivations int
	)

	command := &cobra.Command{
		Use:   "request",
		Short: "Request a license for this machine and store it locally",
	}
	command.Flags().StringVar(&serverURL, "server", "https://localhost:8443", "license server base URL")
	command.Flags().StringVar(&caFile, "ca", "", "path to a PEM CA certificate to pin")
	command.Flags().StringVar(&licenseFile, "license-file", defaultLicensePath(), "where to store the issued license")
	command.Flags().StringVar(&macOverride, "mac", "", "override the detected MAC address")
	command.Flags().IntVar(&durationDays, "duration", 0, "license duration in days (server default when 0)")
	command.Flags().IntVar(&maxActivations, "max-activations", 0, "activation limit (server default when 0)")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		mac, err := resolveMAC(macOverride)
		if err != nil {
			return err
		}

		c, err := client.NewClient(serverURL, caFile)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		resp, err := c.RequestLicense(ctx, mac, durationDays, maxActivations)
		if err != nil {
			return err
		}

		stored := &client.StoredLicense{
			LicenseKey: resp.LicenseKey,
			ExpiryDate: resp.ExpiryDate,
		}
		if err := client.NewStorage(licenseFile).Save(stored); err != nil {
			return errors.Wrap(err, "license issued but could not be saved")
		}

		fmt.Printf("License issued for %s\n", resp.MACAddress)
		fmt.Printf("  Key:     %s\n", resp.LicenseKey)
		fmt.Printf("  Expires: %s\n", resp.ExpiryDate)
		fmt.Printf("  Saved:   %s\n", licenseFile)
		return nil
	}

	return command
}

func RunValidateCommand() *cobra.Command {
	var (
		serverURL   string
		caFile      string
		licenseFile string
		macOverride string
	)

	command := &cobra.Command{
		Use:   "validate",
		Short: "Validate the stored license against the server",
	}
	command.Flags().StringVar(&serverURL, "server", "https://localhost:8443", "license server base URL")
	command.Flags().StringVar(&caFile, "ca", "", "path to a PEM CA certificate to pin")
	command.Flags().StringVar(&licenseFile, "license-file", defaultLicensePath(), "path to the stored license")
	command.Flags().StringVar(&macOverride, "mac", "", "override the detected MAC address")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		stored, err := client.NewStorage(licenseFile).Load()
		if err != nil {
			return err
		}

		mac, err := resolveMAC(macOverride)
		if err != nil {
			return err
		}

		c, err := client.NewClient(serverURL, caFile)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		resp, err := c.ValidateLicense(ctx, stored.LicenseKey, mac)
		if err != nil {
			return err
		}

		if !resp.Valid {
			// the server's verdict is reported as-is, the client never retries
			fmt.Printf("License invalid: %s\n", resp.Reason)
			os.Exit(1)
		}

		fmt.Printf("License valid for %s, expires %s\n", resp.Claims.MACAddress, resp.Claims.ExpiryDate)
		return nil
	}

	return command
}

func RunStatusCommand() *cobra.Command {
	var licenseFile string

	command := &cobra.Command{
		Use:   "status",
		Short: "Show the locally stored license without contacting the server",
	}
	command.Flags().StringVar(&licenseFile, "license-file", defaultLicensePath(), "path to the stored license")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		stored, err := client.NewStorage(licenseFile).Load()
		if err != nil {
			return err
		}

		fmt.Printf("License key: %s\n", stored.LicenseKey)
		fmt.Printf("Expires:     %s\n", stored.ExpiryDate)
		return nil
	}

	return command
}
