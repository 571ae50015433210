// SPDX-License-Identifier: GPL-3.0-or-later

package graph

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bassosimone/nop"
)

// MaxRecursionDepth bounds the parse-phase work list so a malformed
// profile with a runaway requirement chain fails closed instead of
// exhausting the stack (spec §4.4, "Track a visit-depth to bound
// recursion"). The value mirrors the original implementation's default
// (ytflow/src/config/set.rs).
const MaxRecursionDepth = 64

// Registry resolves a plugin_type string to a fresh [Factory] instance.
type Registry interface {
	New(pluginType string) (Factory, bool)
}

// RegistryFunc adapts a function to [Registry].
type RegistryFunc func(pluginType string) (Factory, bool)

// New implements [Registry].
func (f RegistryFunc) New(pluginType string) (Factory, bool) {
	return f(pluginType)
}

// Loader parses and loads a profile's plugins into a [*Set] (spec §4.4).
//
// All fields are safe to set after construction but before first use of
// [Loader.LoadAll]; Loader itself is not safe for concurrent use from
// multiple goroutines calling LoadAll simultaneously on the same instance.
type Loader struct {
	// Registry resolves plugin_type strings to Factory instances.
	Registry Registry

	// Descriptors is the profile's plugin descriptors, keyed by name.
	Descriptors map[string]Descriptor

	// Logger is used to log one line per per-plugin error (spec §7,
	// "logs once at load").
	Logger nop.SLogger

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier nop.ErrClassifier

	// TimeNow returns the current time (configurable for testing).
	TimeNow func() time.Time

	mu        sync.Mutex
	parsed    map[string]*ParsedPlugin
	parseErrs map[string]error
	errs      map[string]error
	loaded    map[string]bool
}

// NewLoader returns a [*Loader] with sensible defaults for Logger,
// ErrClassifier, and TimeNow (following [nop.NewConfig]'s defaulting
// convention).
func NewLoader(registry Registry, descriptors map[string]Descriptor) *Loader {
	return &Loader{
		Registry:      registry,
		Descriptors:   descriptors,
		Logger:        nop.DefaultSLogger(),
		ErrClassifier: nop.DefaultErrClassifier,
		TimeNow:       time.Now,
		parsed:        make(map[string]*ParsedPlugin),
		parseErrs:     make(map[string]error),
		errs:          make(map[string]error),
		loaded:        make(map[string]bool),
	}
}

// Errors returns the per-plugin errors accumulated across parsing and
// loading, keyed by plugin name.
func (l *Loader) Errors() map[string]error {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]error, len(l.errs))
	for k, v := range l.errs {
		out[k] = v
	}
	return out
}

// Parsed returns the per-plugin instantiated factories for every
// plugin that parsed successfully, keyed by name. Valid after
// [Loader.LoadAll] returns; callers use this to reach a loaded
// [Factory] directly for capabilities [Set] doesn't expose through an
// access point, such as a control-plane Responder (spec §6).
func (l *Loader) Parsed() map[string]*ParsedPlugin {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]*ParsedPlugin, len(l.parsed))
	for k, v := range l.parsed {
		out[k] = v
	}
	return out
}

func (l *Loader) recordError(name string, err error) {
	l.mu.Lock()
	l.errs[name] = err
	l.mu.Unlock()
	l.Logger.Info(
		"pluginLoadError",
		slog.String("plugin", name),
		slog.Any("err", err),
		slog.String("errClass", l.ErrClassifier.Classify(err)),
		slog.Time("t", l.TimeNow()),
	)
}

// parsePlugin parses name (and, transitively, everything it requires),
// tolerating per-plugin errors (spec §4.4 parse phase).
func (l *Loader) parsePlugin(name string, depth int) (*ParsedPlugin, error) {
	l.mu.Lock()
	if p, ok := l.parsed[name]; ok {
		l.mu.Unlock()
		return p, nil
	}
	if err, ok := l.parseErrs[name]; ok {
		l.mu.Unlock()
		return nil, err
	}
	l.mu.Unlock()

	if depth > MaxRecursionDepth {
		err := &ConfigError{Plugin: name, Kind: ConfigErrRecursionOverflow}
		l.mu.Lock()
		l.parseErrs[name] = err
		l.mu.Unlock()
		l.recordError(name, err)
		return nil, err
	}

	desc, ok := l.Descriptors[name]
	if !ok {
		err := &ConfigError{Plugin: name, Kind: ConfigErrUnresolvedAP}
		l.mu.Lock()
		l.parseErrs[name] = err
		l.mu.Unlock()
		l.recordError(name, err)
		return nil, err
	}

	factory, ok := l.Registry.New(desc.PluginType)
	if !ok {
		err := &ConfigError{Plugin: name, Kind: ConfigErrUnknownPluginType}
		l.mu.Lock()
		l.parseErrs[name] = err
		l.mu.Unlock()
		l.recordError(name, err)
		return nil, err
	}

	parsed, err := factory.Parse(desc)
	if err != nil {
		cerr := &ConfigError{Plugin: name, Kind: ConfigErrParseParam, Cause: err}
		l.mu.Lock()
		l.parseErrs[name] = cerr
		l.mu.Unlock()
		l.recordError(name, cerr)
		return nil, cerr
	}
	parsed.Descriptor = desc

	l.mu.Lock()
	l.parsed[name] = parsed
	l.mu.Unlock()

	// Recursively parse every plugin this one requires. Missing
	// requirements are per-plugin errors for *that* plugin, not fatal
	// for the whole graph (spec §4.4).
	for _, req := range parsed.Requires {
		owner := req.AP.Plugin()
		if owner == name || owner == ReservedNull || owner == ReservedOut {
			continue
		}
		l.parsePlugin(owner, depth+1)
	}
	return parsed, nil
}

// LoadAll runs the load phase starting from entryNames, returning the
// resulting [*Set]. After LoadAll returns, for every AP that was ever
// requested, either the backing Cell has been filled, or it remains
// empty and a per-plugin error has been recorded — there is no panic
// path for missing APs (spec §4.4 invariant).
func (l *Loader) LoadAll(ctx context.Context, entryNames []string) *Set {
	set := NewSet()

	var loadPlugin func(ctx context.Context, name string) bool
	resolve := func(ctx context.Context, ap AP) bool {
		owner := ap.Plugin()
		if owner == ReservedNull {
			return false
		}
		l.mu.Lock()
		already := l.loaded[owner]
		l.mu.Unlock()
		if already {
			return true
		}
		return loadPlugin(ctx, owner)
	}

	loadPlugin = func(ctx context.Context, name string) bool {
		l.mu.Lock()
		if l.loaded[name] {
			l.mu.Unlock()
			return true
		}
		// Mark loaded before recursing: this is what makes cycles
		// terminate (spec §4.4 step 2, "Cycles terminate because the
		// weak was installed in step 1").
		l.loaded[name] = true
		l.mu.Unlock()

		parsed, err := l.parsePlugin(name, 0)
		if err != nil {
			return false
		}

		l.Logger.Info("pluginLoadStart", slog.String("plugin", name), slog.Time("t", l.TimeNow()))
		err = parsed.Factory.Load(ctx, name, set, resolve)
		if err != nil {
			l.recordError(name, err)
			return false
		}
		l.Logger.Info("pluginLoadDone", slog.String("plugin", name), slog.Time("t", l.TimeNow()))
		return true
	}

	for _, e := range entryNames {
		loadPlugin(ctx, e)
	}
	return set
}
