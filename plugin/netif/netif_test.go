// SPDX-License-Identifier: GPL-3.0-or-later

package netif

import (
	"testing"

	"github.com/bassosimone/flowplane/config"
	"github.com/stretchr/testify/require"
)

func TestSelectorSelectReplacesCurrent(t *testing.T) {
	s := NewSelector(Selection{Interface: "eth0"})
	require.Equal(t, "eth0", s.Current().Interface)

	s.Select(Selection{Interface: "wlan0", PreferIPv6: true})
	require.Equal(t, Selection{Interface: "wlan0", PreferIPv6: true}, s.Current())
}

func TestResponderCollectInfoSkipsUnchangedVersion(t *testing.T) {
	s := NewSelector(Selection{Interface: "eth0"})
	r := NewResponder(s)

	info, hash := r.CollectInfo(nil)
	require.NotNil(t, info)

	var got Selection
	require.NoError(t, config.DecodeParam(info, &got))
	require.Equal(t, "eth0", got.Interface)

	info2, hash2 := r.CollectInfo(hash)
	require.Nil(t, info2)
	require.Equal(t, hash, hash2)
}

func TestResponderCollectInfoChangesAfterSelect(t *testing.T) {
	s := NewSelector(Selection{Interface: "eth0"})
	r := NewResponder(s)

	_, hash := r.CollectInfo(nil)
	s.Select(Selection{Interface: "wlan0"})

	info, hash2 := r.CollectInfo(hash)
	require.NotNil(t, info)
	require.NotEqual(t, hash, hash2)

	var got Selection
	require.NoError(t, config.DecodeParam(info, &got))
	require.Equal(t, "wlan0", got.Interface)
}

func TestResponderOnRequestSelect(t *testing.T) {
	s := NewSelector(Selection{Interface: "eth0"})
	r := NewResponder(s)

	param, err := config.EncodeParam(Selection{Interface: "wlan0", PreferIPv6: true})
	require.NoError(t, err)

	_, err = r.OnRequest("select", param)
	require.NoError(t, err)
	require.Equal(t, Selection{Interface: "wlan0", PreferIPv6: true}, s.Current())
}

func TestResponderOnRequestUnknownOp(t *testing.T) {
	s := NewSelector(Selection{})
	r := NewResponder(s)

	_, err := r.OnRequest("bogus", nil)
	require.Error(t, err)
}
