// SPDX-License-Identifier: GPL-3.0-or-later

package graph

import "context"

// Factory is what a plugin type registers with the graph loader: it knows
// how to parse a [Descriptor] into requirement/provision edges, and how to
// instantiate the plugin once its dependencies are resolved (spec §4.4).
type Factory interface {
	// Parse decodes desc.Param and returns the dependency edges for this
	// plugin. It must not perform I/O or construct the plugin instance.
	Parse(desc Descriptor) (*ParsedPlugin, error)

	// Load constructs the plugin instance and installs its provided APs
	// into set, following the cyclic-constructor protocol (spec §4.4,
	// step-by-step load phase):
	//
	//  1. Create Cells for every AP this plugin provides and install
	//     their Weak handles into set before resolving dependencies.
	//  2. Resolve each Requirement by calling resolve, which recursively
	//     loads the owning plugin if it is not loaded yet.
	//  3. Construct the plugin, then Fill the Cells created in step 1.
	Load(ctx context.Context, name string, set *Set, resolve ResolveFunc) error
}

// ResolveFunc is handed to [Factory.Load] so it can ask the loader to
// resolve (parsing and loading as needed) the plugin that owns a given AP.
// It returns only a bool: false when the owning plugin is unknown or fails
// to parse. Per-plugin errors are recorded by the loader rather than
// returned, so the caller can install a placeholder per spec §4.4 step 3.
type ResolveFunc func(ctx context.Context, ap AP) (ok bool)
