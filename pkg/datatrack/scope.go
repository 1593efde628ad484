package datatrack

import (
	"context"
	"sync"
)

// Scope measures code blocks under one subject name. A Scope may be reused
// and shared between goroutines; each Enter starts an independent
// invocation.
type Scope struct {
	site *site
}

// Scope returns a scope for subject name.
func (m *Monitor) Scope(name string, opts ...TrackOption) *Scope {
	return &Scope{site: m.newSite(name, opts)}
}

// Enter starts an invocation. The returned Guard must be finished with Exit
// or Done.
func (sc *Scope) Enter() *Guard {
	return sc.EnterContext(sc.site.ctx)
}

// EnterContext is Enter with the context handed to sinks and alerts.
func (sc *Scope) EnterContext(ctx context.Context) *Guard {
	return &Guard{inv: sc.site.begin(), ctx: ctx}
}

// Decorate returns fn wrapped so every call is measured under the scope.
func (sc *Scope) Decorate(fn func() error) func() error {
	return func() error {
		return sc.site.call(sc.site.ctx, fn)
	}
}

// Guard is the state of one scoped invocation.
type Guard struct {
	inv  *invocation
	ctx  context.Context
	once sync.Once
	meas Measurement
}

// Exit ends the invocation with err as its outcome and returns the
// Measurement. Only the first call records anything; later calls return the
// same Measurement.
func (g *Guard) Exit(err error) Measurement {
	g.once.Do(func() {
		g.meas = g.inv.finish(g.ctx, err)
	})
	return g.meas
}

// Done ends the invocation from a deferred call:
//
//	defer g.Done(&err)
//
// A panic in progress is recorded as a failure and re-raised. errp may be nil.
func (g *Guard) Done(errp *error) {
	if r := recover(); r != nil {
		g.Exit(&PanicError{Value: r})
		panic(r)
	}
	var err error
	if errp != nil {
		err = *errp
	}
	g.Exit(err)
}
