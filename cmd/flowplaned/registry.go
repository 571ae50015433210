// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"github.com/bassosimone/flowplane/graph"
	"github.com/bassosimone/flowplane/plugin/dns"
	"github.com/bassosimone/flowplane/plugin/dynout"
	"github.com/bassosimone/flowplane/plugin/forward"
	"github.com/bassosimone/flowplane/plugin/httpproxy"
	"github.com/bassosimone/flowplane/plugin/netif"
	"github.com/bassosimone/flowplane/plugin/nullreject"
	"github.com/bassosimone/flowplane/plugin/redirect"
	"github.com/bassosimone/flowplane/plugin/resolvedest"
	"github.com/bassosimone/flowplane/plugin/ruledispatch"
	"github.com/bassosimone/flowplane/plugin/shadowsocks"
	"github.com/bassosimone/flowplane/plugin/simpledispatch"
	"github.com/bassosimone/flowplane/plugin/socket"
	"github.com/bassosimone/flowplane/plugin/socks5"
	switchplugin "github.com/bassosimone/flowplane/plugin/switch"
	"github.com/bassosimone/flowplane/plugin/tls"
	"github.com/bassosimone/flowplane/plugin/trojan"
	"github.com/bassosimone/flowplane/plugin/vmess"
	"github.com/bassosimone/flowplane/plugin/ws"
)

// newRegistry returns the [graph.Registry] mapping every plugin_type
// name a profile may reference to a fresh [graph.Factory] instance.
// Each entry corresponds to one concrete plugin package under
// plugin/; "null"/"reject" are the two instances [nullreject] provides
// under distinct type names since they have unrelated Param shapes.
func newRegistry() graph.Registry {
	factories := map[string]func() graph.Factory{
		"socket":         func() graph.Factory { return socket.NewFactory() },
		"socks5":         func() graph.Factory { return socks5.NewFactory() },
		"http-proxy":     func() graph.Factory { return httpproxy.NewFactory() },
		"shadowsocks":    func() graph.Factory { return shadowsocks.NewFactory() },
		"vmess":          func() graph.Factory { return vmess.NewFactory() },
		"trojan":         func() graph.Factory { return trojan.NewFactory() },
		"tls":            func() graph.Factory { return tls.NewFactory() },
		"websocket":      func() graph.Factory { return ws.NewFactory() },
		"redirect":       func() graph.Factory { return redirect.NewFactory() },
		"resolve-dest":   func() graph.Factory { return resolvedest.NewFactory() },
		"netif":          func() graph.Factory { return netif.NewFactory() },
		"dns-server":     func() graph.Factory { return dns.NewFactory() },
		"null":           func() graph.Factory { return nullreject.NewNullFactory() },
		"reject":         func() graph.Factory { return nullreject.NewRejectFactory() },
		"simple-dispatch": func() graph.Factory { return simpledispatch.NewFactory() },
		"rule-dispatch":  func() graph.Factory { return ruledispatch.NewFactory() },
		"switch":         func() graph.Factory { return switchplugin.NewFactory() },
		"dyn-outbound":   func() graph.Factory { return dynout.NewFactory() },
		"forward":        func() graph.Factory { return forward.NewFactory() },
	}
	return graph.RegistryFunc(func(pluginType string) (graph.Factory, bool) {
		ctor, ok := factories[pluginType]
		if !ok {
			return nil, false
		}
		return ctor(), true
	})
}
