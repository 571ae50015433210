// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux

package netif

import "fmt"

// bindToDevice is a no-op stub on platforms without SO_BINDTODEVICE.
// Interface-bound dialing on those platforms needs a platform-specific
// discovery and binding layer (ytflow's sys/ submodules), which is a
// declared Non-goal here.
func bindToDevice(fd uintptr, name string) error {
	return fmt.Errorf("netif: interface binding is not supported on this platform")
}
