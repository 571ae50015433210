// SPDX-License-Identifier: GPL-3.0-or-later

package graph

// Descriptor is the immutable record the profile store produces for each
// plugin (spec §3). Param is a self-describing binary document decoded by
// the owning plugin's [Factory] (see package config).
type Descriptor struct {
	ID         *int64
	Name       string
	PluginType string
	Version    string
	Param      []byte
}

// Requirement names an AP a plugin needs, together with the type it must
// satisfy.
type Requirement struct {
	AP   AP
	Type APType
}

// Provision names an AP a plugin exposes, together with the type(s) it
// satisfies.
type Provision struct {
	AP   AP
	Type APType
}

// ParsedPlugin is what a [Factory]'s Parse method produces: the
// dependency edges for one plugin, plus a reference back to the factory
// able to instantiate it (spec §4.4, parse phase).
type ParsedPlugin struct {
	Descriptor Descriptor
	Factory    Factory
	Requires   []Requirement
	Provides   []Provision
	Resources  []string
}
