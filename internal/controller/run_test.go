package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/travisghansen/kubernetes-controller-go/plugins/echoguard"
)

// TestRunReconcilesEchoguardEndToEnd drives the full tick loop against an
// in-memory gateway: a pre-existing config ConfigMap enabling echoguard
// should result in the plugin's allow-list being written back through the
// Store within a few ticks.
func TestRunReconcilesEchoguardEndToEnd(t *testing.T) {
	gw := &fakeGateway{}
	gw.put(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "controller-config", Namespace: "kube-system"},
		Data: map[string]string{"config": `
enabled: true
plugins:
  echoguard:
    enabled: true
    resyncCron: "@every 1h"
    allowCIDRs:
      - 10.0.0.0/8
`},
	})

	c := New(gw, Options{StoreEnabled: true})
	require.NoError(t, c.RegisterPlugin(echoguard.Descriptor()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		for _, p := range gw.patches {
			if p.name == "controller-store" {
				if _, ok := p.data["echoguard/applied-cidrs"]; ok {
					return true
				}
			}
		}
		return false
	}, 8*time.Second, 20*time.Millisecond, "expected echoguard to persist its applied CIDR list through the store")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop after context cancellation")
	}
}

func TestRunWaitsForConfigBeforeReconciling(t *testing.T) {
	gw := &fakeGateway{}
	c := New(gw, Options{StoreEnabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	assert.Nil(t, c.getConfig())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop after context cancellation")
	}
}
