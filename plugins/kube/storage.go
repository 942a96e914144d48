// Package kube implements a storage backend that round-trips a backend's
// slice through one Kubernetes ConfigMap's Data map, one key/value entry per
// datum (SPEC_FULL.md §4.J). No direct teacher source exists for this —
// client-go only appears in go.mod — so this is built straight against the
// standard CoreV1().ConfigMaps(ns) client shape.
package kube

import (
	"context"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/registry"
)

func init() {
	registry.Register("kube/storage", plugin.FactoryFunc(openStorage))
}

const requestTimeout = 15 * time.Second

// storageInstance owns one ConfigMap's resolver and storage lifecycle, the
// same single-owner shape s3/gcs/azure/hdfs use: a mountpoint's /backend
// plugin is the only one GetFunction is ever asked about, so there's no
// separate kube/resolver factory.
type storageInstance struct {
	mu        sync.Mutex
	client    kubernetes.Interface
	namespace string
	name      string

	haveWitness     bool
	resourceVersion string
	conflict        bool
}

func openStorage(cfg *keyset.KeySet, errorKey *key.Key) (plugin.Instance, error) {
	namespace, name, kubeconfig, err := configKeys(cfg)
	if err != nil {
		if errorKey != nil {
			kdberr.SetOn(errorKey, err)
		}
		return nil, err
	}
	restCfg, restErr := buildRestConfig(kubeconfig)
	if restErr != nil {
		wrapped := kdberr.Installationf("kube", "building rest.Config: %v", restErr)
		if errorKey != nil {
			kdberr.SetOn(errorKey, wrapped)
		}
		return nil, wrapped
	}
	clientset, clientErr := kubernetes.NewForConfig(restCfg)
	if clientErr != nil {
		wrapped := kdberr.Installationf("kube", "building clientset: %v", clientErr)
		if errorKey != nil {
			kdberr.SetOn(errorKey, wrapped)
		}
		return nil, wrapped
	}
	return &storageInstance{client: clientset, namespace: namespace, name: name}, nil
}

// buildRestConfig prefers in-cluster config (the common deployment shape for
// a plugin running inside the cluster it configures), falling back to an
// explicit kubeconfig path when user:/kubeconfig names one.
func buildRestConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			return cfg, nil
		}
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
}

func configKeys(cfg *keyset.KeySet) (namespace, name, kubeconfig string, err *kdberr.Error) {
	ns, lookupErr := cfg.LookupByName("user:/namespace", keyset.LookupNone)
	if lookupErr != nil || ns == nil || ns.Value() == "" {
		return "", "", "", kdberr.Installationf("kube", "missing required config key user:/namespace")
	}
	n, lookupErr := cfg.LookupByName("user:/name", keyset.LookupNone)
	if lookupErr != nil || n == nil || n.Value() == "" {
		return "", "", "", kdberr.Installationf("kube", "missing required config key user:/name")
	}
	var kc string
	if k, lookupErr := cfg.LookupByName("user:/kubeconfig", keyset.LookupNone); lookupErr == nil && k != nil {
		kc = k.Value()
	}
	return ns.Value(), n.Value(), kc, nil
}

func (s *storageInstance) Close(*key.Key) error { return nil }

func (s *storageInstance) Init(*keyset.KeySet, *key.Key) plugin.Result { return plugin.Success }

func (s *storageInstance) fetch(ctx context.Context) (*corev1.ConfigMap, bool, error) {
	cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return cm, true, nil
}

// Get's resolver phase compares ResourceVersion, a real server-assigned
// version counter (not a heuristic witness like the cloud plugins' ETag
// string comparisons); storage decodes the ConfigMap's Data map directly
// into keys, one Data entry per key name.
func (s *storageInstance) Get(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		s.mu.Lock()
		defer s.mu.Unlock()
		cm, exists, err := s.fetch(ctx)
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("kube", err, "getting configmap %s/%s", s.namespace, s.name))
			return plugin.Error
		}
		rv := ""
		if exists {
			rv = cm.ResourceVersion
		}
		changed := !s.haveWitness || s.resourceVersion != rv
		s.haveWitness, s.resourceVersion = true, rv
		if !changed {
			return plugin.NoUpdate
		}
		return plugin.Success
	case plugin.PhaseStorage:
		cm, exists, err := s.fetch(ctx)
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("kube", err, "getting configmap %s/%s", s.namespace, s.name))
			return plugin.Error
		}
		if !exists {
			return plugin.Success
		}
		for name, value := range cm.Data {
			k, kErr := key.New(name, key.WithValue(value))
			if kErr != nil {
				continue
			}
			if err := ks.Append(k); err != nil {
				kdberr.SetOn(parent, kdberr.Resourcef("kube", err, "appending %s", name))
				return plugin.Error
			}
		}
		return plugin.Success
	default:
		return plugin.Success
	}
}

// Set's resolver phase re-fetches and compares ResourceVersion against the
// value last observed by this instance; since the subsequent Update call
// itself carries that ResourceVersion, the apiserver enforces the real
// precondition atomically (like gcs/azure's native conditional writes, not
// s3/hdfs's optimistic approximation) and a stale write surfaces as an
// IsConflict error from Update in the storage phase below.
func (s *storageInstance) Set(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		s.mu.Lock()
		defer s.mu.Unlock()
		cm, exists, err := s.fetch(ctx)
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("kube", err, "getting configmap %s/%s", s.namespace, s.name))
			return plugin.Error
		}
		rv := ""
		if exists {
			rv = cm.ResourceVersion
		}
		if s.haveWitness && s.resourceVersion != rv {
			s.conflict = true
			kdberr.SetOn(parent, kdberr.Conflict("kube", s.namespace+"/"+s.name))
			return plugin.Error
		}
		s.conflict = false
		return plugin.Success
	case plugin.PhaseStorage:
		data := map[string]string{}
		ks.Each(func(k *key.Key) { data[k.Name()] = k.Value() })

		s.mu.Lock()
		rv := s.resourceVersion
		have := s.haveWitness
		s.mu.Unlock()

		cm := &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: s.name, Namespace: s.namespace, ResourceVersion: rv},
			Data:       data,
		}
		var updated *corev1.ConfigMap
		var err error
		if have && rv != "" {
			updated, err = s.client.CoreV1().ConfigMaps(s.namespace).Update(ctx, cm, metav1.UpdateOptions{})
		} else {
			cm.ResourceVersion = ""
			updated, err = s.client.CoreV1().ConfigMaps(s.namespace).Create(ctx, cm, metav1.CreateOptions{})
		}
		if err != nil {
			if apierrors.IsConflict(err) {
				s.mu.Lock()
				s.conflict = true
				s.mu.Unlock()
				kdberr.SetOn(parent, kdberr.Conflict("kube", s.namespace+"/"+s.name))
				return plugin.Error
			}
			kdberr.SetOn(parent, kdberr.Resourcef("kube", err, "writing configmap %s/%s", s.namespace, s.name))
			return plugin.Error
		}
		s.mu.Lock()
		s.haveWitness, s.resourceVersion = true, updated.ResourceVersion
		s.mu.Unlock()
		return plugin.Success
	default:
		return plugin.Success
	}
}

// Commit and Error are no-ops: Update/Create is itself the atomic, durable
// action the apiserver already committed to etcd, so there is nothing left
// to persist and nothing partial to roll back.
func (s *storageInstance) Commit(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	return plugin.Success
}

func (s *storageInstance) Error(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	return plugin.Success
}

func (s *storageInstance) GetFunction(name string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case "filename":
		return s.namespace + "/" + s.name, true
	case "witness":
		if !s.haveWitness {
			return nil, false
		}
		return s.resourceVersion, true
	case "conflict":
		return s.conflict, true
	}
	return nil, false
}
