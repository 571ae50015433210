// SPDX-License-Identifier: GPL-3.0-or-later

package vmess

import "github.com/google/uuid"

// ParseUserID parses a VMess user ID, conventionally configured as a
// UUID string, into the raw 16-byte form [deriveCmdKey] expects.
func ParseUserID(s string) ([16]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, err
	}
	return [16]byte(id), nil
}
