package simulator

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Initializer wires one content instance onto an actor: it creates the buffs,
// procs and hooks the effect needs. A returned error aborts setup.
type Initializer func(ctx *EffectContext) error

// Registration is one entry of the effect registry.
type Registration struct {
	ID   string
	Init Initializer
	// DedupKey groups content identifiers that share one live instance per
	// actor. Empty means the identifier itself.
	DedupKey string
	// OnDuplicate runs for every copy after the first, against the already
	// created effect. Nil means later copies only bump Effect.Copies.
	OnDuplicate Initializer
}

func (r *Registration) key() string {
	if r.DedupKey != "" {
		return r.DedupKey
	}
	return r.ID
}

// RegisterOption customizes a registration.
type RegisterOption func(*Registration)

// WithDedupKey collapses every registration sharing key into one instance.
func WithDedupKey(key string) RegisterOption {
	return func(r *Registration) { r.DedupKey = strings.TrimSpace(key) }
}

// WithDuplicateHandler runs fn for duplicate copies of the content.
func WithDuplicateHandler(fn Initializer) RegisterOption {
	return func(r *Registration) { r.OnDuplicate = fn }
}

// ContentInstance is one equipped or active piece of content with its
// resolved numeric parameters.
type ContentInstance struct {
	ID     string             `json:"id" yaml:"id"`
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

// Effect is the live, per-actor instance shared by every copy of one dedup key.
type Effect struct {
	Key       string
	ContentID string
	Copies    int
	Buffs     []*Buff
	Procs     []*ProcCallback
	// State holds content specific shared data.
	State any
}

// Registry maps content identifiers to initializers. It is created and torn
// down with a simulation run; nothing about it is global.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Registration
	frozen  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Registration)}
}

// Register adds an initializer for a content identifier.
func (r *Registry) Register(id string, init Initializer, opts ...RegisterOption) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &SetupError{Field: "id", Err: errors.New("content id is required")}
	}
	if init == nil {
		return &SetupError{Content: id, Field: "init", Err: errors.New("initializer is required")}
	}
	reg := &Registration{ID: id, Init: init}
	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return &SetupError{Content: id, Err: ErrRegistryFrozen}
	}
	if r.entries == nil {
		r.entries = make(map[string]*Registration)
	}
	if _, exists := r.entries[id]; exists {
		return &SetupError{Content: id, Err: ErrDuplicateContent}
	}
	r.entries[id] = reg
	return nil
}

// MustRegister is Register for package init tables; it panics on error.
func (r *Registry) MustRegister(id string, init Initializer, opts ...RegisterOption) {
	if err := r.Register(id, init, opts...); err != nil {
		panic(err)
	}
}

// Lookup returns the registration for id.
func (r *Registry) Lookup(id string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[strings.TrimSpace(id)]
	return reg, ok
}

// IDs returns every registered identifier, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Freeze rejects further registrations. Simulators freeze the registry they
// are built from.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Teardown drops every registration and unfreezes the registry.
func (r *Registry) Teardown() {
	r.mu.Lock()
	r.entries = make(map[string]*Registration)
	r.frozen = false
	r.mu.Unlock()
}

// Setup instantiates content on actor in order. The first instance of each
// dedup key runs its initializer; later copies reuse the live effect. Any
// failure is returned as a *SetupError naming the content.
func (r *Registry) Setup(actor *Actor, instances []ContentInstance) error {
	for _, inst := range instances {
		reg, ok := r.Lookup(inst.ID)
		if !ok {
			return &SetupError{Content: inst.ID, Err: ErrUnknownContent}
		}
		key := reg.key()
		ctx := &EffectContext{Actor: actor, Instance: inst}

		if eff, exists := actor.effects[key]; exists {
			eff.Copies++
			ctx.Effect = eff
			actor.debug("effect duplicate", "content", inst.ID, "key", key, "copies", eff.Copies)
			if reg.OnDuplicate != nil {
				if err := reg.OnDuplicate(ctx); err != nil {
					return withContent(inst.ID, err)
				}
			}
			continue
		}

		eff := &Effect{Key: key, ContentID: inst.ID, Copies: 1}
		ctx.Effect = eff
		if err := reg.Init(ctx); err != nil {
			return withContent(inst.ID, err)
		}
		actor.effects[key] = eff
		actor.effectSeq = append(actor.effectSeq, eff)
		actor.debug("effect setup", "content", inst.ID, "key", key,
			"buffs", len(eff.Buffs), "procs", len(eff.Procs))
	}
	return nil
}

func withContent(id string, err error) error {
	var se *SetupError
	if errors.As(err, &se) {
		if se.Content == "" {
			se.Content = id
		}
		return err
	}
	return &SetupError{Content: id, Err: err}
}

// EffectContext is handed to initializers. Parameter accessors fail fast with
// setup errors instead of substituting defaults.
type EffectContext struct {
	Actor    *Actor
	Effect   *Effect
	Instance ContentInstance
}

// Coefficient returns a required numeric parameter.
func (c *EffectContext) Coefficient(name string) (float64, error) {
	v, ok := c.Instance.Params[name]
	if !ok {
		return 0, &SetupError{Content: c.Instance.ID, Field: name, Err: ErrMissingCoefficient}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &SetupError{Content: c.Instance.ID, Field: name,
			Err: fmt.Errorf("%w: value %v", ErrMissingCoefficient, v)}
	}
	return v, nil
}

// CoefficientOr returns an optional numeric parameter.
func (c *EffectContext) CoefficientOr(name string, def float64) float64 {
	if v, ok := c.Instance.Params[name]; ok && !math.IsNaN(v) {
		return v
	}
	return def
}

// Seconds returns a required non-negative duration given in seconds.
func (c *EffectContext) Seconds(name string) (time.Duration, error) {
	v, err := c.Coefficient(name)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, &SetupError{Content: c.Instance.ID, Field: name,
			Err: fmt.Errorf("%w: %vs", ErrMalformedDuration, v)}
	}
	return time.Duration(v * float64(time.Second)), nil
}

// Rate returns a required strictly positive rate.
func (c *EffectContext) Rate(name string) (float64, error) {
	v, err := c.Coefficient(name)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, &SetupError{Content: c.Instance.ID, Field: name,
			Err: fmt.Errorf("%w: %v", ErrInvalidRate, v)}
	}
	return v, nil
}

// Stacks returns a required whole stack count of at least one.
func (c *EffectContext) Stacks(name string) (int, error) {
	v, err := c.Coefficient(name)
	if err != nil {
		return 0, err
	}
	if v < 1 || v != math.Trunc(v) {
		return 0, &SetupError{Content: c.Instance.ID, Field: name,
			Err: fmt.Errorf("%w: %v", ErrInvalidStacks, v)}
	}
	return int(v), nil
}

// NewBuff creates a buff on the actor and records it on the effect.
func (c *EffectContext) NewBuff(cfg BuffConfig) (*Buff, error) {
	b, err := c.Actor.NewBuff(cfg)
	if err != nil {
		return nil, err
	}
	c.Effect.Buffs = append(c.Effect.Buffs, b)
	return b, nil
}

// NewProc creates a proc callback on the actor and records it on the effect.
func (c *EffectContext) NewProc(cfg ProcConfig) (*ProcCallback, error) {
	p, err := c.Actor.NewProc(cfg)
	if err != nil {
		return nil, err
	}
	c.Effect.Procs = append(c.Effect.Procs, p)
	return p, nil
}
