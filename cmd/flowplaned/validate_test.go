// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/graph"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, descs map[string]graph.Descriptor) string {
	t.Helper()
	raw, err := config.EncodeProfile(&config.Profile{Descriptors: descs})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "profile.cbor")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestRunValidateProfileReportsCleanLoad(t *testing.T) {
	path := writeProfile(t, map[string]graph.Descriptor{
		"direct": {Name: "direct", PluginType: "null"},
	})
	var out bytes.Buffer
	err := runValidateProfile(context.Background(), path, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "1 plugins loaded cleanly")
}

func TestRunValidateProfileReportsUnknownPluginType(t *testing.T) {
	path := writeProfile(t, map[string]graph.Descriptor{
		"mystery": {Name: "mystery", PluginType: "does-not-exist"},
	})
	var out bytes.Buffer
	err := runValidateProfile(context.Background(), path, &out)
	require.Error(t, err)
	require.Contains(t, out.String(), "mystery")
}

func TestRunValidateProfileRejectsMissingFile(t *testing.T) {
	var out bytes.Buffer
	err := runValidateProfile(context.Background(), filepath.Join(t.TempDir(), "missing.cbor"), &out)
	require.Error(t, err)
}
