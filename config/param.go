// SPDX-License-Identifier: GPL-3.0-or-later

// Package config decodes plugin descriptor parameters. Every plugin
// type defines its own parameter struct with `cbor:"..."` tags; the
// profile store hands each plugin its [graph.Descriptor].Param as an
// opaque CBOR-encoded document, and [DecodeParam] is the one place that
// knows how to turn it back into a Go value (spec §3, §6, "Param is a
// self-describing binary document decoded by the owning plugin's
// Factory").
package config

import (
	"fmt"

	"github.com/bassosimone/flowplane/graph"
	"github.com/fxamacker/cbor/v2"
)

// DecodeParam decodes raw into dst, which must be a pointer to a struct
// tagged with `cbor:"..."` field names.
func DecodeParam(raw []byte, dst any) error {
	if err := cbor.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("config: decoding param: %w", err)
	}
	return nil
}

// EncodeParam is the inverse of [DecodeParam], used by tests and by
// tooling that builds profiles programmatically rather than loading
// them from storage.
func EncodeParam(v any) ([]byte, error) {
	raw, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("config: encoding param: %w", err)
	}
	return raw, nil
}

// Profile is a name-keyed bag of plugin descriptors: the CBOR-ish
// binary document spec.md §6 says the profile store would otherwise
// produce from a SQLite-backed CRUD surface (an explicit Non-goal
// here). [DecodeProfile]/[EncodeProfile] let a standalone descriptor
// file stand in for that storage layer, so a CLI invocation doesn't
// need one.
type Profile struct {
	Descriptors map[string]graph.Descriptor `cbor:"descriptors"`
}

// DecodeProfile decodes a whole profile document, as produced by
// [EncodeProfile] or hand-authored tooling.
func DecodeProfile(raw []byte) (*Profile, error) {
	var p Profile
	if err := cbor.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("config: decoding profile: %w", err)
	}
	return &p, nil
}

// EncodeProfile is the inverse of [DecodeProfile].
func EncodeProfile(p *Profile) ([]byte, error) {
	raw, err := cbor.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("config: encoding profile: %w", err)
	}
	return raw, nil
}
