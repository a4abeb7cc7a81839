// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package hwaddr normalizes device hardware addresses. The server and the
// client must produce byte-identical normalized strings, so both go through
// this package.
package hwaddr

import (
	"net"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidAddress = errors.New("invalid hardware address")

// Normalize parses a MAC address in any of the formats accepted by
// net.ParseMAC and renders it uppercase with dash separators between octet
// pairs (e.g. AA-BB-CC-DD-EE-FF).
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidAddress
	}

	hw, err := net.ParseMAC(raw)
	if err != nil {
		return "", errors.Wrap(ErrInvalidAddress, raw)
	}

	return strings.ToUpper(strings.ReplaceAll(hw.String(), ":", "-")), nil
}

// FromInterfaces returns the normalized address of the first non-loopback
// interface that carries hardware address material.
func FromInterfaces() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return Normalize(iface.HardwareAddr.String())
	}

	return "", errors.New("no usable network interface found")
}
