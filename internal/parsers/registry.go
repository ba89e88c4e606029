package parsers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/atbench/internal/parsed"
	"github.com/danmuck/atbench/internal/protocol"
)

var (
	ErrDuplicateParser = errors.New("parsers: duplicate registration")
	ErrNilParser       = errors.New("parsers: parser is nil")
	ErrInvalidCommand  = errors.New("parsers: invalid command")
)

// Func converts a reply and its status into a typed result and a default
// verdict. Implementations must be total over malformed input.
type Func func(reply string, status protocol.Status) (parsed.Result, bool)

// Entry is one registered parser.
type Entry struct {
	Command string
	Name    string
	Parse   Func
}

// Apply runs the parser. A panicking parser is recovered as unparseable.
func (e Entry) Apply(reply string, status protocol.Status) (res parsed.Result, pass bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("command", e.Command).Interface("panic", r).Msg("parsers.Entry.Apply recovered")
			res, pass = parsed.Unparseable(reply), false
		}
	}()
	return e.Parse(reply, status)
}

type registerOptions struct {
	override bool
}

type RegisterOption func(*registerOptions)

// WithOverride replaces an existing entry instead of failing.
func WithOverride() RegisterOption {
	return func(o *registerOptions) {
		o.override = true
	}
}

// Registry stores parsers by command identifier. It is safe for concurrent
// use.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Entry)}
}

// Register stores fn under command. An empty name defaults to the command.
func (r *Registry) Register(command, name string, fn Func, opts ...RegisterOption) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return fmt.Errorf("%w: command is required", ErrInvalidCommand)
	}
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrNilParser, command)
	}
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = command
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[command]; ok && !o.override {
		return fmt.Errorf("%w: %s", ErrDuplicateParser, command)
	}
	r.items[command] = Entry{Command: command, Name: name, Parse: fn}
	return nil
}

// Resolve returns the entry registered for command.
func (r *Registry) Resolve(command string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[command]
	return e, ok
}

// Lookup returns the registered entry or a pass-if-OK fallback named after
// the command.
func (r *Registry) Lookup(command string) Entry {
	if e, ok := r.Resolve(command); ok {
		return e
	}
	return Entry{Command: command, Name: command, Parse: PassIfOK}
}

// Name returns the display name for command.
func (r *Registry) Name(command string) string {
	return r.Lookup(command).Name
}

// List returns entries ordered by command.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	list := make([]Entry, 0, len(r.items))
	for _, e := range r.items {
		list = append(list, e)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].Command < list[j].Command
	})
	return list
}
