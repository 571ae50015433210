// SPDX-License-Identifier: GPL-3.0-or-later

// Package slogx collects the small argument-building helpers plugin/
// packages share when logging through a [nop.SLogger], so each call
// site assembles the same key names for the same kind of fact rather
// than inventing its own.
package slogx

// Err returns the ("error", msg) pair for a [nop.SLogger] call, or nil
// if err is nil, so callers can build an args slice without a branch:
//
//	logger.Info("dial failed", slogx.Err(err)...)
func Err(err error) []any {
	if err == nil {
		return nil
	}
	return []any{"error", err.Error()}
}

// Span returns the ("span", spanID) pair identifying which flow a log
// line belongs to (spec §4.1's per-flow span ID).
func Span(spanID string) []any {
	return []any{"span", spanID}
}

// Args flattens any number of key/value pair slices (as returned by Err,
// Span, or a caller's own []any{"key", value}) into one args slice,
// skipping nil groups so an absent Err doesn't leave a dangling key.
func Args(groups ...[]any) []any {
	var out []any
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
