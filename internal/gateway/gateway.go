// Package gateway is the Cluster API Gateway of spec.md §2: the external
// collaborator the rest of the framework treats as a point-in-time
// request/response plus streaming-watch surface. It is the only package
// that imports k8s.io/client-go directly; everything above it (store,
// controller) only sees ConfigMap values and watch.Event callbacks.
//
// Grounded on the teacher's client wrapper
// (streamspace-dev-streamspace/api/internal/k8s/client.go: NewClient,
// getConfig) for in-cluster/kubeconfig auto-detection, and on the
// retrieved ConfigMap-store example
// (other_examples/..._configmapstore.go) for the Get/Create/Patch/Watch
// shape this framework actually needs.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Gateway is the minimal ConfigMap surface the framework depends on.
// doAction/plugin code never sees this interface directly; only Store and
// the config watch do.
type Gateway interface {
	// GetConfigMap returns the named ConfigMap, or a NotFound error
	// satisfying IsNotFound.
	GetConfigMap(ctx context.Context, namespace, name string) (*corev1.ConfigMap, error)
	// CreateConfigMap creates an empty-or-populated ConfigMap.
	CreateConfigMap(ctx context.Context, cm *corev1.ConfigMap) (*corev1.ConfigMap, error)
	// PatchConfigMap merges the given data keys into the ConfigMap's data
	// via a JSON merge patch.
	PatchConfigMap(ctx context.Context, namespace, name string, data map[string]string) (*corev1.ConfigMap, error)
	// WatchConfigMap opens a watch on the single named ConfigMap, resumable
	// from resourceVersion ("" for a fresh watch, which first delivers the
	// current object as an ADDED event).
	WatchConfigMap(ctx context.Context, namespace, name, resourceVersion string) (watch.Interface, error)
}

// IsNotFound reports whether err is a Kubernetes NotFound / Failure status
// response, matching spec.md §4.3's "If the response indicates a Failure
// status" bootstrap check.
func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

// Client is the production Gateway, backed by a real client-go clientset.
type Client struct {
	clientset *kubernetes.Clientset
}

// NewClient builds a Client auto-detecting in-cluster config first, falling
// back to $KUBECONFIG or ~/.kube/config.
func NewClient() (*Client, error) {
	config, err := restConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return &Client{clientset: clientset}, nil
}

func restConfig() (*rest.Config, error) {
	if config, err := rest.InClusterConfig(); err == nil {
		return config, nil
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

func (c *Client) GetConfigMap(ctx context.Context, namespace, name string) (*corev1.ConfigMap, error) {
	return c.clientset.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
}

func (c *Client) CreateConfigMap(ctx context.Context, cm *corev1.ConfigMap) (*corev1.ConfigMap, error) {
	return c.clientset.CoreV1().ConfigMaps(cm.Namespace).Create(ctx, cm, metav1.CreateOptions{})
}

func (c *Client) PatchConfigMap(ctx context.Context, namespace, name string, data map[string]string) (*corev1.ConfigMap, error) {
	patch := map[string]interface{}{
		"data": data,
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}
	return c.clientset.CoreV1().ConfigMaps(namespace).Patch(ctx, name, types.MergePatchType, body, metav1.PatchOptions{})
}

func (c *Client) WatchConfigMap(ctx context.Context, namespace, name, resourceVersion string) (watch.Interface, error) {
	return c.clientset.CoreV1().ConfigMaps(namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector:   "metadata.name=" + name,
		ResourceVersion: resourceVersion,
	})
}
