// SPDX-License-Identifier: GPL-3.0-or-later

// Package control implements the "plugin responder" surface spec.md §5
// names: a uniform request/response contract that lets an external
// control channel (a CLI, an RPC endpoint — both Non-goals here)
// inspect and mutate a running plugin-set without a direct Go
// reference to any one plugin. dyn-outbound's "select"/"list_proxies",
// netif's "select", switch's "s", and forward's stat snapshots all
// answer through the same [Responder] shape.
package control

import "sync"

// Responder is implemented by any plugin that exposes control-plane
// operations (spec §5, "Control plane"). CollectInfo returns nil when
// the plugin's state has not changed since lastHash, sparing the
// caller a redundant snapshot; OnRequest dispatches a named operation
// with opaque, plugin-defined parameters and reply bytes.
type Responder interface {
	CollectInfo(lastHash []byte) (info []byte, hash []byte)
	OnRequest(op string, params []byte) ([]byte, error)
}

// Hub registers the [Responder] exposed by every control-capable
// plugin in a running plugin-set, keyed by plugin name, so a single
// external caller can reach any of them by name without depending on
// the graph loader directly.
type Hub struct {
	mu        sync.RWMutex
	responders map[string]Responder
}

// NewHub returns an empty [*Hub].
func NewHub() *Hub {
	return &Hub{responders: make(map[string]Responder)}
}

// Register installs r under name, replacing any previous registration.
func (h *Hub) Register(name string, r Responder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responders[name] = r
}

// Unregister removes name, if present.
func (h *Hub) Unregister(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.responders, name)
}

// Dispatch forwards op/params to the plugin registered under name.
func (h *Hub) Dispatch(name, op string, params []byte) ([]byte, error) {
	h.mu.RLock()
	r, ok := h.responders[name]
	h.mu.RUnlock()
	if !ok {
		return nil, &UnknownPluginError{Name: name}
	}
	return r.OnRequest(op, params)
}

// CollectInfo forwards to the plugin registered under name.
func (h *Hub) CollectInfo(name string, lastHash []byte) ([]byte, []byte, error) {
	h.mu.RLock()
	r, ok := h.responders[name]
	h.mu.RUnlock()
	if !ok {
		return nil, nil, &UnknownPluginError{Name: name}
	}
	info, hash := r.CollectInfo(lastHash)
	return info, hash, nil
}

// UnknownPluginError reports a [Hub] lookup for a name with no
// registered [Responder].
type UnknownPluginError struct {
	Name string
}

func (e *UnknownPluginError) Error() string {
	return "control: no responder registered for plugin " + e.Name
}
