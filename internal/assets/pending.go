// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assets

import "context"

// Pending is the handle for one load of one URL. Every concurrent caller
// asking for the same URL receives the same *Pending.
type Pending struct {
	url    string
	done   chan struct{}
	failed bool // written once, before done is closed
}

func newPending(url string) *Pending {
	return &Pending{url: url, done: make(chan struct{})}
}

// settled returns an already-resolved handle.
func settled(url string, failed bool) *Pending {
	p := newPending(url)
	p.resolve(failed)
	return p
}

func (p *Pending) resolve(failed bool) {
	p.failed = failed
	close(p.done)
}

// URL returns the asset URL this handle tracks.
func (p *Pending) URL() string { return p.url }

// Done is closed once the load has settled (success or failure).
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the load settles or ctx is done. A failed load is not an
// error; inspect Failed afterwards.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failed reports whether this load ended in failure. Only meaningful after Done.
func (p *Pending) Failed() bool {
	select {
	case <-p.done:
		return p.failed
	default:
		return false
	}
}
