// Package plugin defines the Plugin Instance / Descriptor / Contract of
// spec.md §3–§4.4: the six lifecycle hooks, the rate-control knobs, and the
// scheduling bookkeeping (actionRequired, the three timestamps,
// lastActionSuccess) the Controller's reconcile predicate reads.
//
// The interface shape is modeled on the teacher's PluginHandler
// (streamspace-dev-streamspace/api/internal/plugins/runtime.go): a small
// set of lifecycle hooks plus optional event hooks, constructed via a
// factory and driven by a runtime that never calls plugin code off its own
// single scheduling thread. Event hooks are generalized here to this
// framework's reconcile-oriented contract instead of StreamSpace's 16
// platform events.
package plugin

import (
	"context"
	"sync"
	"time"

	"github.com/travisghansen/kubernetes-controller-go/internal/clock"
	"github.com/travisghansen/kubernetes-controller-go/internal/jsonval"
	"github.com/travisghansen/kubernetes-controller-go/internal/logx"
	"github.com/travisghansen/kubernetes-controller-go/internal/watchset"
)

// Handler is the contract every plugin implements. Only the Controller
// invokes these methods, and never concurrently with another plugin's
// (single scheduling thread, spec.md §5).
type Handler interface {
	// Init runs exactly once, after construction and before the instance
	// is served any tick. May register watches and load snapshot state.
	Init(ctx context.Context) error
	// Deinit runs exactly once, before the instance is discarded. No
	// further calls follow.
	Deinit(ctx context.Context) error
	// PreReadWatches runs each tick before the instance's own watches
	// advance.
	PreReadWatches(ctx context.Context)
	// PostReadWatches runs each tick after the instance's own watches
	// advance.
	PostReadWatches(ctx context.Context)
	// DoAction runs when the reconcile predicate passes. true means
	// reconciled; false means retry per the back-off gate.
	DoAction(ctx context.Context) bool
	// SettleTime is the minimum quiet period after the first
	// actionRequired rising edge before DoAction may run. Zero disables
	// the settle gate.
	SettleTime() time.Duration
	// ThrottleTime is the minimum interval between successive DoAction
	// attempts. Zero disables the throttle gate.
	ThrottleTime() time.Duration
}

// Factory constructs a Handler given the Host the Controller provides it —
// spec.md §3's "factory that constructs a Plugin Instance given a
// Controller handle".
type Factory func(host Host) Handler

// Descriptor is the static registration spec.md §3 describes: a unique
// plugin id plus its factory.
type Descriptor struct {
	ID  string
	New Factory
}

// StoreAccessor is the subset of Store a plugin's namespaced GetStore/
// SaveStore helpers need. Satisfied by *store.Store.
type StoreAccessor interface {
	Get(key string) (jsonval.Value, bool)
	Set(ctx context.Context, key string, value jsonval.Value) bool
}

// Registry is the inter-plugin shared-handle map the Controller exposes to
// plugins (spec.md §3 "registry", §6 "Registry"). It offers both reads and
// writes; plugins are not limited to read access.
type Registry interface {
	SetRegistryItem(key string, value interface{})
	GetRegistryItem(key string) (interface{}, bool)
}

// Host is what a plugin's factory and hooks see of the Controller: the
// helpers spec.md §4.4 lists (markActionRequired, addWatch, logEvent,
// config, getStore/saveStore) plus read and write access to the shared
// registry.
type Host interface {
	MarkActionRequired()
	AddWatch(h *watchset.Handle)
	LogEvent(event string)
	Config() jsonval.Value
	GetStore(key string) (jsonval.Value, bool)
	SaveStore(ctx context.Context, key string, value jsonval.Value) bool
	Registry() Registry
}

// Instance is the runtime state of one active plugin (spec.md §3). It
// implements Host for its own Handler.
type Instance struct {
	ID      string
	handler Handler

	clock   clock.Clock
	store   StoreAccessor
	reg     Registry
	cfg     jsonval.Value
	watches *watchset.Set
	log     zerologLogger

	mu                     sync.Mutex
	actionRequired         bool
	actionRequiredTime     time.Time
	lastActionAttemptTime  time.Time
	lastActionSuccessTime  time.Time
	lastActionFailTime     time.Time
	lastActionSuccess      bool
}

// zerologLogger is the minimal logging surface Instance needs, narrowed so
// this package doesn't have to import zerolog's full API at every call
// site.
type zerologLogger interface {
	Info(msg string)
}

type instanceLogger struct{ id string }

func (l instanceLogger) Info(msg string) {
	logx.Component("plugin:" + l.id).Info().Msg(msg)
}

// New constructs an Instance for descriptor d, wires it as its own Host,
// and invokes the factory. Init is not called here — the Controller calls
// it once, per spec.md §3's lifecycle ("init runs exactly once ... before
// the first tick serves it").
func New(d Descriptor, clk clock.Clock, store StoreAccessor, reg Registry, cfg jsonval.Value) *Instance {
	inst := &Instance{
		ID:                d.ID,
		clock:             clk,
		store:             store,
		reg:               reg,
		cfg:               cfg,
		watches:           watchset.NewSet(),
		log:               instanceLogger{id: d.ID},
		lastActionSuccess: true,
	}
	inst.handler = d.New(inst)
	return inst
}

// Handler returns the plugin's Handler, for the Controller to invoke
// lifecycle hooks.
func (i *Instance) Handler() Handler { return i.handler }

// Watches returns the plugin's own watch set, advanced each tick by the
// Controller between PreReadWatches and PostReadWatches.
func (i *Instance) Watches() *watchset.Set { return i.watches }

// --- Host implementation -------------------------------------------------

func (i *Instance) MarkActionRequired() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.actionRequired {
		i.actionRequired = true
		i.actionRequiredTime = i.clock.Now()
	}
}

func (i *Instance) AddWatch(h *watchset.Handle) {
	i.watches.Add(h)
}

func (i *Instance) LogEvent(event string) {
	i.log.Info(event)
}

func (i *Instance) Config() jsonval.Value { return i.cfg }

func (i *Instance) GetStore(key string) (jsonval.Value, bool) {
	if i.store == nil {
		return jsonval.Null(), false
	}
	return i.store.Get(i.ID + "/" + key)
}

func (i *Instance) SaveStore(ctx context.Context, key string, value jsonval.Value) bool {
	if i.store == nil {
		return false
	}
	return i.store.Set(ctx, i.ID+"/"+key, value)
}

func (i *Instance) Registry() Registry { return i.reg }

// --- Scheduler-facing accessors ------------------------------------------

// Snapshot is a read-only copy of the scheduling state the reconcile
// predicate evaluates, returned to avoid holding i.mu across the
// Controller's gate checks.
type Snapshot struct {
	ActionRequired        bool
	ActionRequiredTime    time.Time
	LastActionAttemptTime time.Time
	LastActionSuccessTime time.Time
	LastActionFailTime    time.Time
	LastActionSuccess     bool
}

func (i *Instance) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Snapshot{
		ActionRequired:        i.actionRequired,
		ActionRequiredTime:    i.actionRequiredTime,
		LastActionAttemptTime: i.lastActionAttemptTime,
		LastActionSuccessTime: i.lastActionSuccessTime,
		LastActionFailTime:    i.lastActionFailTime,
		LastActionSuccess:     i.lastActionSuccess,
	}
}

// InvokeAction runs the plugin's DoAction and records the attempt per
// spec.md §4.1 "invokeAction": lastActionAttemptTime is set before the
// call; on success actionRequired clears and lastActionSuccessTime is set;
// on failure actionRequired stays true and lastActionFailTime is set.
// actionRequiredTime is deliberately left untouched either way — spec.md §9
// preserves this verbatim, load-bearing for settle-time burst coalescing.
func (i *Instance) InvokeAction(ctx context.Context) bool {
	now := i.clock.Now()

	i.mu.Lock()
	i.lastActionAttemptTime = now
	i.mu.Unlock()

	ok := i.handler.DoAction(ctx)

	i.mu.Lock()
	defer i.mu.Unlock()
	if ok {
		i.actionRequired = false
		i.lastActionSuccess = true
		i.lastActionSuccessTime = now
	} else {
		i.lastActionSuccess = false
		i.lastActionFailTime = now
	}
	return ok
}
