// SPDX-License-Identifier: GPL-3.0-or-later

package graph

import (
	"context"
	"testing"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
	"github.com/stretchr/testify/require"
)

// cycleFactory wires "requires the other's AP" into "provides my own AP",
// mimicking A requires B.tcp; B requires A.udp from spec §8 property 5.
type cycleFactory struct {
	requiresSuffix string
	providesSuffix string
	otherName      func(self string) string
	built          *int
}

func (f *cycleFactory) Parse(desc Descriptor) (*ParsedPlugin, error) {
	other := f.otherName(desc.Name)
	return &ParsedPlugin{
		Requires: []Requirement{{AP: NewAP(other, f.requiresSuffix), Type: APStreamOutboundFactory}},
		Provides: []Provision{{AP: NewAP(desc.Name, f.providesSuffix), Type: APStreamOutboundFactory}},
	}, nil
}

func (f *cycleFactory) Load(ctx context.Context, name string, set *Set, resolve ResolveFunc) error {
	selfAP := NewAP(name, f.providesSuffix)
	// Step 1: install our own weak before resolving the dependency.
	_ = set.WeakStreamOutbound(selfAP)

	other := f.otherName(name)
	otherAP := NewAP(other, f.requiresSuffix)
	weak := set.WeakStreamOutbound(otherAP)
	resolve(ctx, otherAP)

	*f.built++
	set.FillStreamOutbound(selfAP, &cycleOutbound{self: name, other: weak})
	return nil
}

type cycleOutbound struct {
	self  string
	other *Weak[flow.StreamOutboundFactory]
}

func (o *cycleOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	return nil, flow.ErrNoOutbound
}

func TestTwoCycleLoadsSuccessfully(t *testing.T) {
	var built int
	reg := RegistryFunc(func(pluginType string) (Factory, bool) {
		switch pluginType {
		case "a":
			return &cycleFactory{requiresSuffix: "udp", providesSuffix: "tcp", otherName: func(string) string { return "b" }, built: &built}, true
		case "b":
			return &cycleFactory{requiresSuffix: "tcp", providesSuffix: "udp", otherName: func(string) string { return "a" }, built: &built}, true
		}
		return nil, false
	})

	descriptors := map[string]Descriptor{
		"a": {Name: "a", PluginType: "a"},
		"b": {Name: "b", PluginType: "b"},
	}

	loader := NewLoader(reg, descriptors)
	set := loader.LoadAll(context.Background(), []string{"a"})

	require.Empty(t, loader.Errors())
	require.Equal(t, 2, built, "each side's strong pointer must be installed exactly once")

	_, ok := set.StreamOutbound(NewAP("a", "tcp"))
	require.True(t, ok)
	_, ok = set.StreamOutbound(NewAP("b", "udp"))
	require.True(t, ok)
}

func TestTeardownThenWeakUpgradeReturnsGone(t *testing.T) {
	var built int
	reg := RegistryFunc(func(pluginType string) (Factory, bool) {
		if pluginType == "a" {
			return &cycleFactory{requiresSuffix: "udp", providesSuffix: "tcp", otherName: func(string) string { return "a" }, built: &built}, true
		}
		return nil, false
	})
	descriptors := map[string]Descriptor{"a": {Name: "a", PluginType: "a"}}
	loader := NewLoader(reg, descriptors)
	set := loader.LoadAll(context.Background(), []string{"a"})

	weak := set.WeakStreamOutbound(NewAP("a", "tcp"))
	_, ok := weak.Upgrade()
	require.True(t, ok)

	set.Teardown()

	_, ok = weak.Upgrade()
	require.False(t, ok, "a weak upgrade after teardown must observe 'gone'")
}

func TestUnresolvedRequirementRecordsPerPluginError(t *testing.T) {
	reg := RegistryFunc(func(pluginType string) (Factory, bool) {
		if pluginType == "lonely" {
			return &cycleFactory{requiresSuffix: "tcp", providesSuffix: "tcp", otherName: func(string) string { return "missing" }, built: new(int)}, true
		}
		return nil, false
	})
	descriptors := map[string]Descriptor{"lonely": {Name: "lonely", PluginType: "lonely"}}
	loader := NewLoader(reg, descriptors)
	set := loader.LoadAll(context.Background(), []string{"lonely"})

	require.NotEmpty(t, loader.Errors())
	// The plugin still loaded (it installed a placeholder weak that
	// will never be filled); its own AP remains reachable.
	_, ok := set.StreamOutbound(NewAP("lonely", "tcp"))
	require.True(t, ok)
}
