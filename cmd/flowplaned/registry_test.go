// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryKnowsEveryWiredPluginType(t *testing.T) {
	reg := newRegistry()
	for _, pluginType := range []string{
		"socket", "socks5", "http-proxy", "shadowsocks", "vmess",
		"trojan", "tls", "websocket", "redirect", "resolve-dest",
		"netif", "dns-server", "null", "reject",
		"simple-dispatch", "rule-dispatch", "switch", "dyn-outbound", "forward",
	} {
		f, ok := reg.New(pluginType)
		require.Truef(t, ok, "plugin type %q should be registered", pluginType)
		require.NotNil(t, f)
	}
}

func TestRegistryRejectsUnknownPluginType(t *testing.T) {
	reg := newRegistry()
	_, ok := reg.New("does-not-exist")
	require.False(t, ok)
}

func TestRegistryReturnsFreshInstancesEachCall(t *testing.T) {
	reg := newRegistry()
	a, _ := reg.New("null")
	b, _ := reg.New("null")
	require.NotSame(t, a, b)
}
