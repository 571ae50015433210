// SPDX-License-Identifier: GPL-3.0-or-later

package resolve

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeIPAllocateIsStableAndReversible(t *testing.T) {
	f := NewFakeIP(netip.MustParsePrefix("198.18.0.0/16"), netip.MustParsePrefix("fc00::/112"), time.Minute)

	ip1, err := f.AllocateV4("example.com")
	require.NoError(t, err)
	ip2, err := f.AllocateV4("example.com")
	require.NoError(t, err)
	require.Equal(t, ip1, ip2)

	other, err := f.AllocateV4("example.org")
	require.NoError(t, err)
	require.NotEqual(t, ip1, other)

	domain, ok := f.Lookup(ip1)
	require.True(t, ok)
	require.Equal(t, "example.com", domain)

	_, ok = f.Lookup(netip.MustParseAddr("198.18.255.255"))
	require.False(t, ok)
}

func TestFakeIPExpiresPastTTL(t *testing.T) {
	f := NewFakeIP(netip.MustParsePrefix("198.18.0.0/16"), netip.MustParsePrefix("fc00::/112"), time.Millisecond)
	fakeNow := time.Now()
	f.now = func() time.Time { return fakeNow }

	ip, err := f.AllocateV4("example.com")
	require.NoError(t, err)

	fakeNow = fakeNow.Add(time.Second)
	_, ok := f.Lookup(ip)
	require.False(t, ok)
}
