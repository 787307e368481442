package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func newTestClient(objects ...*corev1.ConfigMap) *Client {
	cs := fake.NewClientset()
	for _, o := range objects {
		_, _ = cs.CoreV1().ConfigMaps(o.Namespace).Create(context.Background(), o, metav1.CreateOptions{})
	}
	return &Client{clientset: cs}
}

func TestClientCreateAndGetConfigMap(t *testing.T) {
	c := newTestClient()
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "controller-config", Namespace: "kube-system"},
		Data:       map[string]string{"config": "enabled: true"},
	}

	created, err := c.CreateConfigMap(context.Background(), cm)
	require.NoError(t, err)
	assert.Equal(t, "controller-config", created.Name)

	got, err := c.GetConfigMap(context.Background(), "kube-system", "controller-config")
	require.NoError(t, err)
	assert.Equal(t, "enabled: true", got.Data["config"])
}

func TestClientGetConfigMapNotFound(t *testing.T) {
	c := newTestClient()
	_, err := c.GetConfigMap(context.Background(), "kube-system", "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClientPatchConfigMapMergesData(t *testing.T) {
	c := newTestClient(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "controller-store", Namespace: "kube-system"},
		Data:       map[string]string{"existing": "1"},
	})

	patched, err := c.PatchConfigMap(context.Background(), "kube-system", "controller-store", map[string]string{"new-key": "2"})
	require.NoError(t, err)
	assert.Equal(t, "1", patched.Data["existing"])
	assert.Equal(t, "2", patched.Data["new-key"])
}

func TestClientWatchConfigMapReceivesEvents(t *testing.T) {
	c := newTestClient()
	w, err := c.WatchConfigMap(context.Background(), "kube-system", "controller-config", "")
	require.NoError(t, err)
	defer w.Stop()

	_, err = c.CreateConfigMap(context.Background(), &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "controller-config", Namespace: "kube-system"},
	})
	require.NoError(t, err)

	select {
	case ev := <-w.ResultChan():
		assert.NotEmpty(t, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
}
