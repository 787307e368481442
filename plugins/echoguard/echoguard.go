// Package echoguard is the framework's bundled reference plugin: a
// minimal firewall-style reconciler that keeps a CIDR allow-list "applied"
// (here: logged and durably recorded via the Store) in sync with its
// declared configuration. It exists to exercise the plugin contract end to
// end and to give new plugin authors a worked example, the same role the
// teacher's plugins/streamspace-* packages play for StreamSpace.
//
// Grounded on streamspace-dev-streamspace/plugins/streamspace-slack
// (slack_plugin.go) for the plugin-file shape, and on
// api/internal/plugins/scheduler.go for layering a plugin-owned cron
// schedule (github.com/robfig/cron/v3) on top of the framework's own
// settle/throttle/back-off gates: the cron job only ever calls
// MarkActionRequired, it never reconciles directly, so the framework's
// scheduler still fully owns when DoAction runs.
package echoguard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/travisghansen/kubernetes-controller-go/internal/jsonval"
	"github.com/travisghansen/kubernetes-controller-go/internal/plugin"
)

// ID is this plugin's registration id, the key config.plugins entries in
// the config ConfigMap use to enable it.
const ID = "echoguard"

// config is echoguard's opaque per-plugin configuration, decoded from the
// ControllerConfig.Plugins[ID].Opaque jsonval.Value.
type config struct {
	allowCIDRs   []string
	resyncCron   string
	settleTime   time.Duration
	throttleTime time.Duration
}

func parseConfig(v jsonval.Value) config {
	cfg := config{
		resyncCron:   "@every 1m",
		settleTime:   0,
		throttleTime: 0,
	}

	if cidrs := v.Field("allowCIDRs"); cidrs.Kind == jsonval.KindArray {
		for _, item := range cidrs.Arr {
			if item.Kind == jsonval.KindString {
				cfg.allowCIDRs = append(cfg.allowCIDRs, item.Str)
			}
		}
	}
	if s := v.Field("resyncCron"); s.Kind == jsonval.KindString && s.Str != "" {
		cfg.resyncCron = s.Str
	}
	if s := v.Field("settleSeconds"); s.Kind == jsonval.KindNumber {
		cfg.settleTime = time.Duration(s.Number) * time.Second
	}
	if s := v.Field("throttleSeconds"); s.Kind == jsonval.KindNumber {
		cfg.throttleTime = time.Duration(s.Number) * time.Second
	}
	return cfg
}

// Plugin reconciles a CIDR allow-list against durable store state.
type Plugin struct {
	host plugin.Host
	cfg  config

	cron       *cron.Cron
	cronEntry  cron.EntryID
	applyCount int
}

// New is the plugin.Factory for echoguard.
func New(host plugin.Host) plugin.Handler {
	return &Plugin{
		host: host,
		cfg:  parseConfig(host.Config()),
	}
}

// Descriptor returns the static registration for this plugin, ready to
// pass to controller.Controller.RegisterPlugin.
func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{ID: ID, New: New}
}

func (p *Plugin) Init(ctx context.Context) error {
	p.host.LogEvent(fmt.Sprintf("echoguard: initializing with %d allow-list entries", len(p.cfg.allowCIDRs)))

	// Reconcile at least once on load, whether or not a prior snapshot is
	// in the store: a fresh Init always means the desired state may have
	// drifted while this plugin was unloaded.
	p.host.MarkActionRequired()

	p.cron = cron.New()
	entryID, err := p.cron.AddFunc(p.cfg.resyncCron, func() {
		p.host.MarkActionRequired()
	})
	if err != nil {
		return fmt.Errorf("echoguard: invalid resync schedule %q: %w", p.cfg.resyncCron, err)
	}
	p.cronEntry = entryID
	p.cron.Start()

	return nil
}

func (p *Plugin) Deinit(ctx context.Context) error {
	if p.cron != nil {
		stopCtx := p.cron.Stop()
		<-stopCtx.Done()
	}
	p.host.LogEvent("echoguard: deinitialized")
	return nil
}

func (p *Plugin) PreReadWatches(ctx context.Context)  {}
func (p *Plugin) PostReadWatches(ctx context.Context) {}

// DoAction "applies" the allow-list: in this reference implementation that
// means sorting/deduplicating it and recording it in the Store, which
// stands in for whatever a real plugin would push to its external system
// (a firewall API, an ingress controller, a DNS zone).
func (p *Plugin) DoAction(ctx context.Context) bool {
	normalized := normalizeCIDRs(p.cfg.allowCIDRs)

	arr := make([]jsonval.Value, len(normalized))
	for i, c := range normalized {
		arr[i] = jsonval.String(c)
	}

	if !p.host.SaveStore(ctx, "applied-cidrs", jsonval.Array(arr)) {
		p.host.LogEvent("echoguard: failed to persist applied CIDR list")
		return false
	}

	p.applyCount++
	p.host.LogEvent(fmt.Sprintf("echoguard: applied %d CIDR(s), generation %d", len(normalized), p.applyCount))
	return true
}

func (p *Plugin) SettleTime() time.Duration   { return p.cfg.settleTime }
func (p *Plugin) ThrottleTime() time.Duration { return p.cfg.throttleTime }

func normalizeCIDRs(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
