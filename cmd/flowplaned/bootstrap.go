// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Bootstrap is the small YAML file flowplaned itself is pointed at: a
// listener address per entry plugin plus the path to the profile
// document (spec.md §6's profile store stays out of scope; this is
// the minimal stand-in that lets the daemon start without one).
type Bootstrap struct {
	// ProfilePath is the CBOR-encoded [config.Profile] document.
	ProfilePath string `yaml:"profile_path"`

	// Listeners is the set of entry plugins to bind real TCP listeners
	// to. Each Name is a plugin name whose "<Name>.tcp" AP must resolve to
	// a [flow.StreamHandler] once the profile loads (a socks5/http-proxy
	// inbound, typically).
	Listeners []ListenerSpec `yaml:"listeners"`

	// MetricsAddr, if set, serves Prometheus metrics over HTTP
	// (`/metrics`) for [dispatch.ForwardMetrics] and friends.
	MetricsAddr string `yaml:"metrics_addr"`
}

// ListenerSpec binds one profile entry plugin to a real address.
type ListenerSpec struct {
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`
}

// loadBootstrap reads and parses a [Bootstrap] document from path.
func loadBootstrap(path string) (*Bootstrap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("flowplaned: reading bootstrap file: %w", err)
	}
	var b Bootstrap
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("flowplaned: parsing bootstrap file: %w", err)
	}
	if b.ProfilePath == "" {
		return nil, fmt.Errorf("flowplaned: bootstrap file: profile_path is required")
	}
	return &b, nil
}
