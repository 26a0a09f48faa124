// Package sink defines outputs for decoded capture records.
package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/pcapstream/internal/core"
)

// Sink receives the records of one capture session. WriteHeader is called
// once before any WritePacket; index counts packets from 1.
type Sink interface {
	Name() string
	Init(cfg map[string]any) error
	Start(ctx context.Context) error
	WriteHeader(ctx context.Context, gh core.GlobalHeader) error
	WritePacket(ctx context.Context, index int, pkt core.Packet) error
	Stop(ctx context.Context) error
}

// Factory creates an uninitialized sink.
type Factory func() Sink

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a sink available by name. Registering a name twice panics.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("sink: %s registered twice", name))
	}
	factories[name] = f
}

// New creates the sink registered under name.
func New(name string) (Sink, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sink %q (available: %v)", name, Names())
	}
	return f(), nil
}

// Names lists registered sinks in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeOptions decodes a raw option map into out, which must be a pointer
// to a struct with mapstructure tags. Unknown keys are rejected. Durations
// may be given as strings such as "200ms".
func DecodeOptions(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return nil
}
