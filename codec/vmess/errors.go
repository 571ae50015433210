// SPDX-License-Identifier: GPL-3.0-or-later

package vmess

import "errors"

var errShortResponse = errors.New("vmess: response header truncated")
