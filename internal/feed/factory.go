package feed

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Venue constructs the concrete streams for one exchange.
type Venue interface {
	NewStream(session Session, symbol string, kind EventKind, onData DataCallback, onError ErrorCallback) Stream
}

// Constructor builds a fresh Venue instance. Venue packages register one of
// these under their name, typically from an init() func.
type Constructor func() Venue

var (
	registryMu sync.Mutex
	registry   = map[string]Constructor{}
)

// Register adds a venue constructor under name. It panics on a duplicate
// registration — mirroring database/sql's driver registry, since two
// packages claiming the same venue name in one binary is a build-time bug,
// not a runtime condition a caller can recover from.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("feed: venue %q already registered", name))
	}
	registry[name] = ctor
}

// New validates desc and constructs the Venue it names.
func New(desc Description) (Venue, error) {
	if err := validate.Struct(desc); err != nil {
		return nil, fmt.Errorf("feed: invalid description: %w", err)
	}
	registryMu.Lock()
	ctor, ok := registry[desc.Venue]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("feed: unknown venue %q", desc.Venue)
	}
	return ctor(), nil
}
