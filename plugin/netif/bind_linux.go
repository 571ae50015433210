// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux

package netif

import "syscall"

// bindToDevice binds fd to the named interface via SO_BINDTODEVICE, the
// standard Linux mechanism for steering a socket's outbound traffic
// through a specific interface regardless of routing table contents.
func bindToDevice(fd uintptr, name string) error {
	return syscall.SetsockoptString(int(fd), syscall.SOL_SOCKET, syscall.SO_BINDTODEVICE, name)
}
