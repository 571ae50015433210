// SPDX-License-Identifier: GPL-3.0-or-later

package slogx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrReturnsNilForNilError(t *testing.T) {
	require.Nil(t, Err(nil))
}

func TestErrReturnsErrorPair(t *testing.T) {
	require.Equal(t, []any{"error", "boom"}, Err(errors.New("boom")))
}

func TestSpanReturnsSpanPair(t *testing.T) {
	require.Equal(t, []any{"span", "abc123"}, Span("abc123"))
}

func TestArgsFlattensAndSkipsNilGroups(t *testing.T) {
	got := Args(Span("abc123"), Err(nil), []any{"plugin", "route"})
	require.Equal(t, []any{"span", "abc123", "plugin", "route"}, got)
}

func TestArgsIncludesErrWhenPresent(t *testing.T) {
	got := Args(Span("abc123"), Err(errors.New("boom")))
	require.Equal(t, []any{"span", "abc123", "error", "boom"}, got)
}
