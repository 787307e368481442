// Package store implements the cluster-persisted key/value Store of
// spec.md §4.3: a single ConfigMap whose data map is kept coherent in an
// in-memory cache via a watch, with write-through Set and no synchronous
// cache update on write (callers tolerate read-after-write lag bounded by
// watch latency).
//
// Grounded directly on the retrieved ConfigMap-backed store
// (other_examples/..._configmapstore.go, k8sconfigmapstore.Store):
// Get/Create bootstrap, an informer-style watch reconciling a local cache,
// and PATCH-based writes. That example uses a client-go informer/workqueue;
// this framework instead advances its own watch.Interface through the
// shared watchset.Handle so the Store fits the same single-threaded tick
// model as everything else (spec.md §5).
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/travisghansen/kubernetes-controller-go/internal/gateway"
	"github.com/travisghansen/kubernetes-controller-go/internal/jsonval"
	"github.com/travisghansen/kubernetes-controller-go/internal/logx"
	"github.com/travisghansen/kubernetes-controller-go/internal/watchset"
)

// Store is the cluster-persisted key/value map backed by one ConfigMap.
type Store struct {
	gw        gateway.Gateway
	namespace string
	name      string
	log       zerologLoggerIface

	mu          sync.RWMutex
	cache       map[string]jsonval.Value
	initialized bool

	watch *watchset.Handle
}

type zerologLoggerIface interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type storeLogger struct{}

func (storeLogger) Infof(format string, args ...interface{}) {
	logx.Component("store").Info().Msgf(format, args...)
}
func (storeLogger) Errorf(format string, args ...interface{}) {
	logx.Component("store").Error().Msgf(format, args...)
}

// New returns an uninitialized Store targeting the given ConfigMap.
// Callers must call Init (possibly repeatedly, per spec.md §3 "it may
// re-enter init while initialized == false") before Get/Set are
// meaningful.
func New(gw gateway.Gateway, namespace, name string) *Store {
	return &Store{
		gw:        gw,
		namespace: namespace,
		name:      name,
		log:       storeLogger{},
		cache:     make(map[string]jsonval.Value),
	}
}

// Initialized reports whether Init has completed successfully.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Init performs the five steps of spec.md §4.3: GET, bootstrap-POST on
// Failure/NotFound, decode data into the cache, register the watch, then
// mark initialized.
func (s *Store) Init(ctx context.Context) error {
	cm, err := s.gw.GetConfigMap(ctx, s.namespace, s.name)
	if err != nil {
		if !gateway.IsNotFound(err) {
			s.log.Errorf("store: failed to get ConfigMap %s/%s: %v", s.namespace, s.name, err)
			return err
		}
		cm, err = s.gw.CreateConfigMap(ctx, &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      s.name,
				Namespace: s.namespace,
			},
			Data: map[string]string{},
		})
		if err != nil {
			s.log.Errorf("store: failed to create ConfigMap %s/%s: %v", s.namespace, s.name, err)
			return err
		}
	}

	s.replaceCache(cm.Data)

	handle, err := watchset.NewHandle(ctx, s.watchFunc, cm.ResourceVersion, s.onEvent)
	if err != nil {
		s.log.Errorf("store: failed to start watch on %s/%s: %v", s.namespace, s.name, err)
		return err
	}

	s.mu.Lock()
	s.watch = handle
	s.initialized = true
	s.mu.Unlock()

	s.log.Infof("store: initialized from ConfigMap %s/%s (%d keys)", s.namespace, s.name, len(cm.Data))
	return nil
}

func (s *Store) watchFunc(ctx context.Context, resourceVersion string) (watch.Interface, error) {
	return s.gw.WatchConfigMap(ctx, s.namespace, s.name, resourceVersion)
}

// onEvent is the watch callback: ADDED/MODIFIED replace the cache wholesale
// from the new object's data, DELETED clears it.
func (s *Store) onEvent(ev watch.Event) {
	switch ev.Type {
	case watch.Added, watch.Modified:
		cm, ok := ev.Object.(*corev1.ConfigMap)
		if !ok {
			return
		}
		s.replaceCache(cm.Data)
	case watch.Deleted:
		s.mu.Lock()
		s.cache = make(map[string]jsonval.Value)
		s.mu.Unlock()
	}
}

// replaceCache parses each data value as JSON into the cache. A nil data
// map (spec.md §9 open question) normalizes to an empty map rather than a
// nil map, so callers never have to special-case it.
func (s *Store) replaceCache(data map[string]string) {
	next := make(map[string]jsonval.Value, len(data))
	for k, raw := range data {
		val, err := jsonval.ParseJSON(raw)
		if err != nil {
			s.log.Errorf("store: failed to decode key %q: %v", k, err)
			continue
		}
		next[k] = val
	}
	s.mu.Lock()
	s.cache = next
	s.mu.Unlock()
}

// AdvanceWatches advances the store's own watch for up to budget, per tick
// step 5/7 of spec.md §4.1.
func (s *Store) AdvanceWatches(ctx context.Context, budget time.Duration) error {
	s.mu.RLock()
	h := s.watch
	s.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h.Start(ctx, budget)
}

// Get is a pure cache read.
func (s *Store) Get(key string) (jsonval.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[key]
	return v, ok
}

// Set PATCHes the ConfigMap with a single-key data mapping whose value is
// the JSON encoding of value. The cache is not updated synchronously; a
// later watch event reconciles it (spec.md §4.3 consistency model).
func (s *Store) Set(ctx context.Context, key string, value jsonval.Value) bool {
	encoded, err := jsonEncode(value)
	if err != nil {
		s.log.Errorf("store: failed to encode value for key %q: %v", key, err)
		return false
	}

	_, err = s.gw.PatchConfigMap(ctx, s.namespace, s.name, map[string]string{key: encoded})
	if err != nil {
		s.log.Errorf("store: failed to write key %q: %v", key, err)
		return false
	}
	return true
}

func jsonEncode(v jsonval.Value) (string, error) {
	b, err := v.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to marshal store value: %w", err)
	}
	return string(b), nil
}
