// Package controller implements the main loop and reconcile scheduler that
// ties together the config watch, the Store, and the active plugin set.
package controller

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/travisghansen/kubernetes-controller-go/internal/clock"
	cfgpkg "github.com/travisghansen/kubernetes-controller-go/internal/config"
	"github.com/travisghansen/kubernetes-controller-go/internal/ctlerr"
	"github.com/travisghansen/kubernetes-controller-go/internal/gateway"
	"github.com/travisghansen/kubernetes-controller-go/internal/logx"
	"github.com/travisghansen/kubernetes-controller-go/internal/plugin"
	"github.com/travisghansen/kubernetes-controller-go/internal/store"
	"github.com/travisghansen/kubernetes-controller-go/internal/watchset"
)

// Default tick/back-off timings.
const (
	tickSleep            = 100 * time.Millisecond
	watchBudget          = 1 * time.Second
	waitingRetryInterval = 5 * time.Second
	defaultFailedWait    = 30 * time.Second
)

// Options configures a Controller at construction, spec.md §6.
type Options struct {
	ControllerID string

	ConfigMapNamespace string
	ConfigMapName      string

	StoreEnabled   bool
	StoreNamespace string
	StoreName      string

	// FailedActionWaitTime is the back-off gate's minimum delay after a
	// failed DoAction before retry. Defaults to 30s.
	FailedActionWaitTime time.Duration

	// Clock is overridable for deterministic tests; defaults to the real
	// wall clock.
	Clock clock.Clock
}

func (o *Options) setDefaults() {
	if o.ConfigMapNamespace == "" {
		o.ConfigMapNamespace = "kube-system"
	}
	if o.FailedActionWaitTime <= 0 {
		o.FailedActionWaitTime = defaultFailedWait
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
}

// Controller orchestrates the config watch, the Store, and the active
// plugin set (spec.md §2, §4.1).
type Controller struct {
	gw   gateway.Gateway
	opts Options
	clk  clock.Clock
	log  zerolog.Logger

	registry *Registry

	mu                sync.Mutex
	config            *cfgpkg.ControllerConfig
	plugins           []*plugin.Instance
	registeredPlugins []plugin.Descriptor

	store *store.Store
}

// New constructs a Controller. RegisterPlugin must be called for every
// plugin descriptor before Run starts (spec.md §9 "registered before
// run() starts; lookup is by pluginId").
func New(gw gateway.Gateway, opts Options) *Controller {
	opts.setDefaults()
	if opts.ConfigMapName == "" {
		opts.ConfigMapName = "controller-config"
	}
	if opts.StoreNamespace == "" {
		opts.StoreNamespace = "kube-system"
	}
	if opts.StoreName == "" {
		opts.StoreName = "controller-store"
	}

	c := &Controller{
		gw:       gw,
		opts:     opts,
		clk:      opts.Clock,
		log:      logx.Component("controller"),
		registry: NewRegistry(),
	}

	// spec.md §9 open question: bootstrap controllerID wins if set; a
	// loaded config's own controller-id later overrides this (see
	// onConfigLoaded), but the registry always holds *some* stable id a
	// plugin can read, generating one if the operator never supplied one.
	id := opts.ControllerID
	if id == "" {
		id = uuid.New().String()
	}
	c.registry.SetRegistryItem("controller-id", id)

	return c
}

// RegisterPlugin adds d to the set of known plugin descriptors. It is a
// registration-time error (spec.md §7) for two descriptors to share an ID.
func (c *Controller) RegisterPlugin(d plugin.Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.registeredPlugins {
		if existing.ID == d.ID {
			return ctlerr.Fatal("register plugin", errDuplicatePlugin(d.ID))
		}
	}
	c.registeredPlugins = append(c.registeredPlugins, d)
	return nil
}

// Registry exposes the Controller's shared registry, e.g. for callers that
// want to seed it before Run.
func (c *Controller) Registry() *Registry { return c.registry }

// Run blocks until ctx is cancelled or a fatal gateway/watch-stream error
// surfaces (spec.md §4.1, §5). Returns nil on clean (ctx-cancelled) exit.
//
// The config-watch handle's callback closes over ctx directly rather than
// storing it on Controller, so watch callbacks triggered from inside the
// tick loop always see the same context Run was given.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info().Msg("controller starting")

	if c.opts.StoreEnabled {
		c.store = store.New(c.gw, c.opts.StoreNamespace, c.opts.StoreName)
	}

	configWatch := watchset.NewSet()
	handle, err := watchset.NewHandle(ctx, c.watchConfigMapFunc, "", func(ev watch.Event) {
		c.onConfigEvent(ctx, ev)
	})
	if err != nil {
		return ctlerr.Fatal("start config watch", err)
	}
	configWatch.Add(handle)

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("controller stopping")
			return nil
		case <-time.After(tickSleep):
		}

		if err := configWatch.Advance(ctx, watchBudget); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return ctlerr.Fatal("advance config watch", err)
		}

		cfg := c.getConfig()
		if cfg == nil {
			c.log.Info().Msg("waiting for config ConfigMap")
			if !sleepOrDone(ctx, waitingRetryInterval) {
				return nil
			}
			continue
		}

		if c.store != nil && !c.store.Initialized() {
			if err := c.store.Init(ctx); err != nil {
				c.log.Warn().Err(err).Msg("waiting for store to initialize")
			}
			if !sleepOrDone(ctx, waitingRetryInterval) {
				return nil
			}
			continue
		}

		if c.store != nil {
			if err := c.store.AdvanceWatches(ctx, watchBudget); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return ctlerr.Fatal("advance store watch", err)
			}
		}

		for _, p := range c.activePlugins() {
			p.Handler().PreReadWatches(ctx)
			if err := p.Watches().Advance(ctx, watchBudget); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return ctlerr.Fatal("advance plugin watches", err)
			}
			p.Handler().PostReadWatches(ctx)

			if c.shouldReconcile(p) {
				ok := p.InvokeAction(ctx)
				if !ok {
					c.log.Warn().Str("plugin", p.ID).Msg("doAction returned false, back-off gate engaged")
				}
			}
		}

		if c.store != nil {
			if err := c.store.AdvanceWatches(ctx, watchBudget); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return ctlerr.Fatal("advance store watch", err)
			}
		}
	}
}

// shouldReconcile implements the reconcile predicate of spec.md §4.1: all
// gates must hold for DoAction to fire.
func (c *Controller) shouldReconcile(p *plugin.Instance) bool {
	snap := p.Snapshot()
	if !snap.ActionRequired {
		return false
	}

	now := c.clk.Now()

	if !snap.LastActionSuccess {
		if !now.After(snap.LastActionAttemptTime.Add(c.opts.FailedActionWaitTime)) {
			return false
		}
	}

	settle := p.Handler().SettleTime()
	if settle > 0 && !snap.ActionRequiredTime.IsZero() {
		if !now.After(snap.ActionRequiredTime.Add(settle)) {
			return false
		}
	}

	throttle := p.Handler().ThrottleTime()
	if throttle > 0 && !snap.LastActionAttemptTime.IsZero() {
		if !now.After(snap.LastActionAttemptTime.Add(throttle)) {
			return false
		}
	}

	return true
}

func (c *Controller) getConfig() *cfgpkg.ControllerConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

func (c *Controller) activePlugins() []*plugin.Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*plugin.Instance, len(c.plugins))
	copy(out, c.plugins)
	return out
}

// sleepOrDone sleeps for d, or returns false early if ctx is cancelled
// first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// sortedPluginIDs returns cfg.Plugins' keys in a stable order so onLoad
// construction order is deterministic across ticks (the source map has no
// inherent order).
func sortedPluginIDs(cfg *cfgpkg.ControllerConfig) []string {
	ids := make([]string, 0, len(cfg.Plugins))
	for id := range cfg.Plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
