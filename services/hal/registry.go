// services/hal/registry.go
package hal

import (
	"fmt"
	"sort"
	"sync"

	"switchcontrol/errcode"
)

// ---- Backend registry ----

// Options are passed to a backend opener.
type Options struct {
	// I2C maps bus ids ("i2c0") to backend specific names ("/dev/i2c-1").
	I2C map[string]string
	// MaxPin bounds the pin numbers a fake board accepts.
	MaxPin int
}

// Opener constructs a Board.
type Opener func(opts Options) (Board, error)

var (
	muBackends sync.RWMutex
	backends   = map[string]Opener{}
)

// RegisterBackend installs an opener for name.
// It panics on duplicate registration to catch mistakes at start-up.
func RegisterBackend(name string, o Opener) {
	muBackends.Lock()
	defer muBackends.Unlock()
	if name == "" {
		panic("hal: empty backend name")
	}
	if _, exists := backends[name]; exists {
		panic(fmt.Sprintf("hal: backend already registered for %q", name))
	}
	backends[name] = o
}

// Backends lists registered backend names.
func Backends() []string {
	muBackends.RLock()
	defer muBackends.RUnlock()
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open opens the named backend.
func Open(name string, opts Options) (Board, error) {
	muBackends.RLock()
	o, ok := backends[name]
	muBackends.RUnlock()
	if !ok {
		return nil, errcode.New(errcode.Unsupported, "hal.open", fmt.Sprintf("unknown hardware backend %q", name))
	}
	return o(opts)
}

// ---- Pin claims ----

type pinOwner struct {
	owner string
	fn    PinFunc
}

// Registry arbitrates exclusive pin ownership on a board.
type Registry struct {
	mu     sync.Mutex
	pins   PinFactory
	owners map[int]pinOwner
}

func NewRegistry(pins PinFactory) *Registry {
	return &Registry{pins: pins, owners: make(map[int]pinOwner)}
}

// ClaimPin hands pin n to owner. Re-claiming by the same owner updates the function.
func (r *Registry) ClaimPin(owner string, n int, fn PinFunc) (Pin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pins.ByNumber(n)
	if !ok {
		return nil, errcode.UnknownPin
	}
	if cur, inUse := r.owners[n]; inUse && cur.owner != owner {
		return nil, errcode.PinInUse
	}
	r.owners[n] = pinOwner{owner: owner, fn: fn}
	return p, nil
}

// ReleasePin resets pin n and drops the claim when owner holds it.
func (r *Registry) ReleasePin(owner string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.owners[n]
	if !ok || cur.owner != owner {
		return
	}
	if p, ok := r.pins.ByNumber(n); ok {
		_ = p.Reset()
	}
	delete(r.owners, n)
}

// ResetPin drives an unclaimed pin to its neutral state.
func (r *Registry) ResetPin(n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, inUse := r.owners[n]; inUse {
		return errcode.PinInUse
	}
	p, ok := r.pins.ByNumber(n)
	if !ok {
		return errcode.UnknownPin
	}
	return p.Reset()
}

// Owner reports who holds pin n and for what.
func (r *Registry) Owner(n int) (string, PinFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.owners[n]
	return cur.owner, cur.fn, ok
}
