package guardrail

import "sync/atomic"

// base provides the identity fields and health counters shared by every
// built-in detector, so each detector only implements Analyze.
type base struct {
	name    string
	typ     string
	enabled bool
	onError OnError

	runs    atomic.Int64
	blocks  atomic.Int64
	warns   atomic.Int64
	errs    atomic.Int64
}

func newBase(name, typ string, onError OnError) base {
	return base{name: name, typ: typ, enabled: true, onError: onError}
}

func (b *base) Name() string    { return b.name }
func (b *base) Type() string    { return b.typ }
func (b *base) Enabled() bool   { return b.enabled }
func (b *base) OnError() OnError { return b.onError }
func (b *base) IsAvailable() bool { return true }

func (b *base) record(r Result, err error) {
	b.runs.Add(1)
	switch {
	case err != nil:
		b.errs.Add(1)
	case r.Blocked:
		b.blocks.Add(1)
	case r.Warned:
		b.warns.Add(1)
	}
}

func (b *base) snapshot(extra map[string]any) map[string]any {
	m := map[string]any{
		"name":      b.name,
		"type":      b.typ,
		"enabled":   b.enabled,
		"available": true,
		"runs":      b.runs.Load(),
		"blocks":    b.blocks.Load(),
		"warns":     b.warns.Load(),
		"errors":    b.errs.Load(),
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}
