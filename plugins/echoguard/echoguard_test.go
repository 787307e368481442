package echoguard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travisghansen/kubernetes-controller-go/internal/jsonval"
	"github.com/travisghansen/kubernetes-controller-go/internal/plugin"
	"github.com/travisghansen/kubernetes-controller-go/internal/watchset"
)

type fakeHost struct {
	mu             sync.Mutex
	cfg            jsonval.Value
	store          map[string]jsonval.Value
	saveFails      bool
	actionRequired int
	events         []string
}

func newFakeHost(cfg jsonval.Value) *fakeHost {
	return &fakeHost{cfg: cfg, store: make(map[string]jsonval.Value)}
}

func (h *fakeHost) MarkActionRequired() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actionRequired++
}
func (h *fakeHost) AddWatch(handle *watchset.Handle) {}
func (h *fakeHost) LogEvent(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}
func (h *fakeHost) Config() jsonval.Value { return h.cfg }
func (h *fakeHost) GetStore(key string) (jsonval.Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.store[key]
	return v, ok
}
func (h *fakeHost) SaveStore(ctx context.Context, key string, value jsonval.Value) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.saveFails {
		return false
	}
	h.store[key] = value
	return true
}
func (h *fakeHost) Registry() plugin.Registry { return nil }

func cidrConfig(cidrs ...string) jsonval.Value {
	arr := make([]jsonval.Value, len(cidrs))
	for i, c := range cidrs {
		arr[i] = jsonval.String(c)
	}
	return jsonval.Object(map[string]jsonval.Value{
		"allowCIDRs": jsonval.Array(arr),
		"resyncCron": jsonval.String("@every 1h"),
	})
}

func TestNewParsesConfig(t *testing.T) {
	host := newFakeHost(cidrConfig("10.0.0.0/8", "192.168.0.0/16"))
	p := New(host).(*Plugin)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, p.cfg.allowCIDRs)
	assert.Equal(t, "@every 1h", p.cfg.resyncCron)
}

func TestInitMarksActionRequiredAndStartsCron(t *testing.T) {
	host := newFakeHost(cidrConfig("10.0.0.0/8"))
	p := New(host).(*Plugin)

	require.NoError(t, p.Init(context.Background()))
	defer p.Deinit(context.Background())

	host.mu.Lock()
	required := host.actionRequired
	host.mu.Unlock()
	assert.Equal(t, 1, required)
}

func TestInitRejectsInvalidCronSchedule(t *testing.T) {
	cfg := jsonval.Object(map[string]jsonval.Value{
		"resyncCron": jsonval.String("not a schedule"),
	})
	host := newFakeHost(cfg)
	p := New(host).(*Plugin)
	assert.Error(t, p.Init(context.Background()))
}

func TestDoActionNormalizesAndPersistsCIDRs(t *testing.T) {
	host := newFakeHost(cidrConfig("10.0.0.0/8", "10.0.0.0/8", " 192.168.0.0/16 "))
	p := New(host).(*Plugin)

	ok := p.DoAction(context.Background())
	require.True(t, ok)

	stored, found := host.GetStore("applied-cidrs")
	require.True(t, found)
	require.Equal(t, jsonval.KindArray, stored.Kind)
	require.Len(t, stored.Arr, 2)
	assert.Equal(t, "10.0.0.0/8", stored.Arr[0].AsString(""))
	assert.Equal(t, "192.168.0.0/16", stored.Arr[1].AsString(""))
}

func TestDoActionReturnsFalseWhenStoreWriteFails(t *testing.T) {
	host := newFakeHost(cidrConfig("10.0.0.0/8"))
	host.saveFails = true
	p := New(host).(*Plugin)

	assert.False(t, p.DoAction(context.Background()))
}

func TestSettleAndThrottleFromConfig(t *testing.T) {
	cfg := jsonval.Object(map[string]jsonval.Value{
		"settleSeconds":   jsonval.Number(5),
		"throttleSeconds": jsonval.Number(30),
	})
	host := newFakeHost(cfg)
	p := New(host).(*Plugin)
	assert.Equal(t, 5*time.Second, p.SettleTime())
	assert.Equal(t, 30*time.Second, p.ThrottleTime())
}

func TestDescriptorID(t *testing.T) {
	assert.Equal(t, "echoguard", Descriptor().ID)
}
