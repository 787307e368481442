package controller

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/watch"

	cfgpkg "github.com/travisghansen/kubernetes-controller-go/internal/config"
	"github.com/travisghansen/kubernetes-controller-go/internal/plugin"
)

var errDuplicatePlugin = func(id string) error {
	return fmt.Errorf("plugin %q already registered", id)
}

func (c *Controller) watchConfigMapFunc(ctx context.Context, resourceVersion string) (watch.Interface, error) {
	return c.gw.WatchConfigMap(ctx, c.opts.ConfigMapNamespace, c.opts.ConfigMapName, resourceVersion)
}

// onConfigEvent is the config-ConfigMap watch callback, spec.md §4.2: it
// switches on event type and applies the config change before plugin
// iteration resumes in the same tick (spec.md §5 ordering guarantee,
// enforced simply by this callback running synchronously inside
// configWatch.Advance, itself called before the plugin loop in Run).
func (c *Controller) onConfigEvent(ctx context.Context, ev watch.Event) {
	switch ev.Type {
	case watch.Added, watch.Modified:
		cm, ok := ev.Object.(*corev1.ConfigMap)
		if !ok {
			return
		}
		cfg, err := cfgpkg.Parse(cm.Data["config"])
		if err != nil {
			c.log.Error().Err(err).Msg("failed to parse controller config")
			return
		}
		c.setConfig(cfg)
		c.onConfigLoaded(ctx, cfg)

	case watch.Deleted:
		c.setConfig(nil)
		c.onConfigUnloaded(ctx)
	}
}

func (c *Controller) setConfig(cfg *cfgpkg.ControllerConfig) {
	c.mu.Lock()
	c.config = cfg
	c.mu.Unlock()
}

// onConfigLoaded implements spec.md §4.2: deinit every currently active
// plugin, then — if the loaded config is enabled — construct and init the
// configured, enabled plugins whose id matches a registered descriptor.
func (c *Controller) onConfigLoaded(ctx context.Context, cfg *cfgpkg.ControllerConfig) {
	c.deinitActivePlugins(ctx)

	if cfg.ControllerID != "" {
		c.registry.SetRegistryItem("controller-id", cfg.ControllerID)
	}

	if !cfg.Enabled {
		c.log.Info().Msg("controller disabled by config, no plugins active")
		return
	}

	var next []*plugin.Instance
	for _, id := range sortedPluginIDs(cfg) {
		pc := cfg.Plugins[id]
		if !pc.Enabled {
			continue
		}
		desc, ok := c.lookupDescriptor(id)
		if !ok {
			c.log.Warn().Str("plugin", id).Msg("no registered descriptor for configured plugin, skipping")
			continue
		}

		// c.store is a concrete *store.Store; when the store is disabled
		// it is a nil pointer, and assigning a nil pointer straight into an
		// interface parameter would produce a non-nil interface holding a
		// nil concrete value. Keep the interface itself nil in that case so
		// plugin.Instance's own nil check behaves as intended.
		var storeAccessor plugin.StoreAccessor
		if c.store != nil {
			storeAccessor = c.store
		}

		inst := plugin.New(desc, c.clk, storeAccessor, c.registry, pc.Opaque)
		if err := inst.Handler().Init(ctx); err != nil {
			c.log.Error().Err(err).Str("plugin", id).Msg("plugin init failed, not activating")
			continue
		}
		c.log.Info().Str("plugin", id).Msg("plugin initialized")
		next = append(next, inst)
	}

	c.mu.Lock()
	c.plugins = next
	c.mu.Unlock()
}

// onConfigUnloaded implements spec.md §4.2's DELETED arm: deinit and
// discard every active plugin.
func (c *Controller) onConfigUnloaded(ctx context.Context) {
	c.log.Info().Msg("config ConfigMap deleted, unloading all plugins")
	c.deinitActivePlugins(ctx)
}

func (c *Controller) deinitActivePlugins(ctx context.Context) {
	c.mu.Lock()
	current := c.plugins
	c.plugins = nil
	c.mu.Unlock()

	for _, p := range current {
		if err := p.Handler().Deinit(ctx); err != nil {
			c.log.Error().Err(err).Str("plugin", p.ID).Msg("plugin deinit returned error")
		}
	}
}

func (c *Controller) lookupDescriptor(id string) (plugin.Descriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.registeredPlugins {
		if d.ID == id {
			return d, true
		}
	}
	return plugin.Descriptor{}, false
}
