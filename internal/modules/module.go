// Package modules maps each memory table of the radio onto one top-level key
// of the YAML document.
//
// A module registers the address ranges it needs with the batch reader,
// decodes its slice of the read results into Config and the document, and on
// write validates its document subtree and queues the encoded table on a
// batch writer. Modules run in registration order, so producers (waypoints)
// are registered before their consumers (routes).
package modules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/hxctl/internal/batch"
	"github.com/danmuck/hxctl/internal/protocol/layout"
	"gopkg.in/yaml.v3"
)

var (
	ErrModuleExists = errors.New("modules: module already registered")
	ErrModuleNil    = errors.New("modules: module is nil")
)

// Module is one config table handler.
type Module interface {
	Name() string
	// AddRanges registers every range the module decodes from.
	AddRanges(r *batch.Reader) error
	// Decode consumes its ranges from res. Absent ranges mean nothing to
	// update. Decoded values go into cfg and are appended to doc.
	Decode(res batch.Results, cfg *Config, doc *yaml.Node) error
	// Encode validates the module's subtree of doc and queues its table on
	// wc.Writer. It reports false when the document has nothing for it.
	Encode(doc *yaml.Node, wc *WriteContext) (bool, error)
}

// Usage counts used and free slots of one table after a write. Skipped
// tables were present in the document but not written.
type Usage struct {
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
	Skipped   bool `json:"skipped,omitempty"`
}

// Diagnostics is keyed by table name.
type Diagnostics map[string]Usage

// WriteContext carries the state of one write pass.
type WriteContext struct {
	Writer *batch.Writer
	// Base holds the device bytes of every range as last read. Modules start
	// their tables from it so bytes they do not model are written back as
	// they were.
	Base batch.Results
	// WriteChannels allows the channel table to be written.
	WriteChannels bool
	// Out holds what earlier modules of this pass encoded.
	Out         *Config
	Diagnostics Diagnostics
}

// NewWriteContext returns an empty context around w.
func NewWriteContext(w *batch.Writer) *WriteContext {
	return &WriteContext{Writer: w, Out: &Config{}, Diagnostics: make(Diagnostics)}
}

func (wc *WriteContext) record(table string, used, capacity int) {
	wc.Diagnostics[table] = Usage{Used: used, Remaining: capacity - used}
}

// baseline returns a private copy of range name as last read, or size bytes
// of fill when the range was not read.
func (wc *WriteContext) baseline(name string, size int, fill byte) []byte {
	out := make([]byte, size)
	if b, ok := wc.Base.Get(name); ok && len(b) == size {
		copy(out, b)
		return out
	}
	for i := range out {
		out[i] = fill
	}
	return out
}

// Registry keeps modules in registration order.
type Registry struct {
	order []Module
	names map[string]Module
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]Module)}
}

// Register appends m. Names are unique.
func (r *Registry) Register(m Module) error {
	if m == nil {
		return ErrModuleNil
	}
	name := strings.TrimSpace(m.Name())
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrModuleNil)
	}
	if _, ok := r.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrModuleExists, name)
	}
	r.names[name] = m
	r.order = append(r.order, m)
	return nil
}

// Resolve returns a module by name.
func (r *Registry) Resolve(name string) (Module, bool) {
	m, ok := r.names[name]
	return m, ok
}

// Modules returns the modules in registration order.
func (r *Registry) Modules() []Module {
	return append([]Module(nil), r.order...)
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.order))
	for _, m := range r.order {
		out = append(out, m.Name())
	}
	return out
}

// Standard returns every module supported by l in dependency order.
func Standard(l *layout.Layout) *Registry {
	r := NewRegistry()
	for _, m := range []Module{
		NewIdentity(l),
		NewChannels(l),
		NewWaypoints(l),
		NewRoutes(l),
		NewDirectory(l),
	} {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
	return r
}
