// SPDX-License-Identifier: GPL-3.0-or-later

// Package store declares the external collaborator interfaces spec.md
// §6 names for persistence: profile/plugin/proxy-group/proxy CRUD and
// the per-plugin key/value cache. The storage layer itself (SQLite in
// the original) is an explicit Non-goal; flowplane only depends on
// these interfaces, plus one optional bbolt-backed [PluginCache]
// implementation (cache.go, built only with the bbolt_cache tag), which
// nothing in this module wires in.
package store

import "context"

// PluginDescriptor is the immutable record the storage layer produces
// for one plugin (spec §3, "Plugin descriptor").
type PluginDescriptor struct {
	ID            int64
	Name          string
	PluginType    string
	PluginVersion string
	Param         []byte
}

// ProxyLeg is one hop of a persisted proxy record (spec §3, "Proxy
// record (persisted v1)").
type ProxyLeg struct {
	Protocol string
	Dest     string
	Obfs     string
	TLS      bool
}

// ProxyRecord is a persisted proxy chain (spec §3, "Proxy record").
type ProxyRecord struct {
	Name         string
	Legs         []ProxyLeg
	UDPSupported bool
}

// ProfileStore is the read side of persistence: profiles, their plugin
// descriptors, and proxy groups/records (spec §6, "Persistence
// (collaborator)"). The core only ever reads through this interface;
// it never writes back profile/plugin/proxy data.
type ProfileStore interface {
	ListPlugins(ctx context.Context, profileID int64) ([]PluginDescriptor, error)
	ListProxyRecords(ctx context.Context, groupID int64) ([]ProxyRecord, error)
}

// PluginCache is the one piece of storage the core writes to. It stores
// integer indices by key; dispatch.Switch persists its selection through
// the same-shaped dispatch.IndexStore. Dyn-outbound's selection and DNS
// reverse-map snapshots are not persisted through it.
type PluginCache interface {
	SaveIndex(key string, index int) error
	LoadIndex(key string) (int, bool, error)
}
