// SPDX-License-Identifier: GPL-3.0-or-later

package resolve

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/bassosimone/flowplane/flow"
)

// V6Wait is how long a v4 winner waits for a v6 attempt before the
// dialer gives up racing and commits to v4 (spec §4.6, "Happy-eyeballs
// dialer": "if v4 returns first, waits up to 50 ms for v6").
const V6Wait = 50 * time.Millisecond

// AttemptStagger is the delay between successive connection attempts
// against resolved addresses (spec §4.6: "Initiates connection attempts
// 250 ms apart").
const AttemptStagger = 250 * time.Millisecond

// Conn is the minimal shape a dial result needs for
// [HappyEyeballsDialer] to race attempts and keep exactly one winner.
type Conn interface {
	Close() error
}

// HappyEyeballsDialer resolves a destination's v4 and v6 addresses in
// parallel and races connection attempts across both families (spec
// §4.6, "Happy-eyeballs dialer").
type HappyEyeballsDialer struct {
	Resolver flow.Resolver
	DialAddr func(ctx context.Context, addr netip.Addr, port uint16) (Conn, error)
}

type attemptResult struct {
	conn Conn
	addr netip.Addr
	err  error
}

// Dial resolves name under both address families and returns the first
// connection to succeed, closing every loser.
func (d *HappyEyeballsDialer) Dial(ctx context.Context, name string, port uint16) (Conn, error) {
	v4ch := make(chan []flow.Host, 1)
	v6ch := make(chan []flow.Host, 1)
	go func() {
		hosts, _ := d.Resolver.ResolveIPv4(ctx, name)
		v4ch <- hosts
	}()
	go func() {
		hosts, _ := d.Resolver.ResolveIPv6(ctx, name)
		v6ch <- hosts
	}()

	var v4, v6 []flow.Host
	select {
	case v4 = <-v4ch:
		// v4 arrived first: wait up to V6Wait for v6 before committing,
		// per spec §4.6 ("if v4 returns first, waits up to 50 ms for v6").
		select {
		case v6 = <-v6ch:
		case <-time.After(V6Wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case v6 = <-v6ch:
		// v6 arrived first: no attempt starts until v4 resolution has
		// also returned (or ctx is done); the race then tries v6
		// candidates first.
		select {
		case v4 = <-v4ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ordered := interleave(v6, v4)
	if len(ordered) == 0 {
		return nil, fmt.Errorf("resolve: happy-eyeballs: %s has no addresses", name)
	}
	return d.race(ctx, ordered, port)
}

// interleave alternates v6 and v4 candidates, v6 first, matching spec
// §4.6's "if v6 returns first, uses it" preference.
func interleave(v6, v4 []flow.Host) []flow.Host {
	out := make([]flow.Host, 0, len(v6)+len(v4))
	for i := 0; i < len(v6) || i < len(v4); i++ {
		if i < len(v6) {
			out = append(out, v6[i])
		}
		if i < len(v4) {
			out = append(out, v4[i])
		}
	}
	return out
}

func (d *HappyEyeballsDialer) race(ctx context.Context, candidates []flow.Host, port uint16) (Conn, error) {
	resultCh := make(chan attemptResult, len(candidates))
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, host := range candidates {
		delay := time.Duration(i) * AttemptStagger
		go func(host flow.Host, delay time.Duration) {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-attemptCtx.Done():
					resultCh <- attemptResult{err: attemptCtx.Err()}
					return
				}
			}
			conn, err := d.DialAddr(attemptCtx, host.IP, port)
			resultCh <- attemptResult{conn: conn, addr: host.IP, err: err}
		}(host, delay)
	}

	var lastErr error
	for range candidates {
		res := <-resultCh
		if res.err == nil {
			cancel()
			drainLosers(resultCh, len(candidates)-1)
			return res.conn, nil
		}
		lastErr = res.err
	}
	return nil, fmt.Errorf("resolve: happy-eyeballs: all attempts failed: %w", lastErr)
}

func drainLosers(ch chan attemptResult, n int) {
	go func() {
		for i := 0; i < n; i++ {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}
	}()
}
