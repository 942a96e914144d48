// Package list implements "list", a global-plugin dispatcher
// (spec.md §4.C step 3, §6): a single plugin instance that owns an ordered
// slice of delegate plugins and fans every phase call out to each of them
// in turn, the same subtree-walk-then-open shape mount/globalplugins.go
// uses for the handle's own global-plugin table, nested one level deeper.
package list

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	cuckoofilter "github.com/seiflotfy/cuckoofilter"

	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/registry"
)

func init() {
	registry.Register("list", plugin.FactoryFunc(openList))
}

// initialCapacity sizes the membership filter generously: list plugins
// mount a handful of delegates, never thousands, so this is about avoiding
// early resize churn, not a real capacity plan.
const initialCapacity = 64

// MountFunc is the type GetFunction("mountplugin") answers: add a delegate
// by name at runtime, opened against the static registry the same way
// Open's own config-driven delegates are.
type MountFunc func(name string, config *keyset.KeySet, errorKey *key.Key) error

// UnmountFunc is the type GetFunction("unmountplugin") answers: close and
// remove a previously mounted delegate by name.
type UnmountFunc func(name string, errorKey *key.Key) bool

type delegate struct {
	name string
	inst plugin.Instance
}

// listInstance dispatches every phase call to each of its delegates, in
// mount order, aggregating results: any delegate returning Error fails the
// whole call, otherwise the result is Success if at least one delegate
// reported Success/CacheHit and NoUpdate only when every delegate did.
type listInstance struct {
	mu        sync.Mutex
	delegates []delegate
	seen      *cuckoofilter.Filter
}

func openList(cfg *keyset.KeySet, errorKey *key.Key) (plugin.Instance, error) {
	l := &listInstance{seen: cuckoofilter.NewFilter(initialCapacity)}
	for _, sp := range parseDelegateSpecs(cfg) {
		if err := l.mount(sp.name, sp.config, errorKey); err != nil {
			l.Close(errorKey)
			return nil, err
		}
	}
	return l, nil
}

type delegateSpec struct {
	name   string
	config *keyset.KeySet
}

// parseDelegateSpecs reads user:/plugins/#N/{name,config/...} entries out of
// cfg, mirroring mount/globalplugins.go's system:/elektra/globalplugins
// subtree walk one level down (list's own config instead of the handle's).
func parseDelegateSpecs(cfg *keyset.KeySet) []delegateSpec {
	root := key.MustNew("user:/plugins")
	rootParts := root.Parts()

	byIdx := map[int]*delegateSpec{}
	var idxs []int
	cfg.Below(root).Each(func(k *key.Key) {
		rel := k.Parts()[len(rootParts):]
		if len(rel) < 2 {
			return
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(rel[0], "#"))
		if err != nil {
			return
		}
		sp, ok := byIdx[idx]
		if !ok {
			sp = &delegateSpec{config: keyset.New(0)}
			byIdx[idx] = sp
			idxs = append(idxs, idx)
		}
		switch {
		case rel[1] == "name":
			sp.name = k.Value()
		case rel[1] == "config" && len(rel) > 2:
			nk := k.Dup(key.DupValue | key.DupMeta)
			if err := nk.SetName("user:/" + strings.Join(rel[2:], "/")); err == nil {
				sp.config.Append(nk)
			}
		}
	})

	sort.Ints(idxs)
	out := make([]delegateSpec, 0, len(idxs))
	for _, idx := range idxs {
		if byIdx[idx].name != "" {
			out = append(out, *byIdx[idx])
		}
	}
	return out
}

// mount opens name against the static registry and appends it to delegates.
// The cuckoofilter gives an O(1) duplicate-mount pre-check before paying for
// a real Open call against a name already present.
func (l *listInstance) mount(name string, cfg *keyset.KeySet, errorKey *key.Key) error {
	l.mu.Lock()
	alreadyMounted := l.seen.Lookup([]byte(name))
	l.mu.Unlock()
	if alreadyMounted {
		return kdberr.Installationf("list", "plugin %s is already mounted", name)
	}

	factory, ok := registry.Lookup(name)
	if !ok {
		return kdberr.Installationf("list", "no statically registered plugin named %s", name)
	}
	inst, err := factory.Open(cfg, errorKey)
	if err != nil {
		return kdberr.Installationf("list", "opening delegate %s: %v", name, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen.InsertUnique([]byte(name))
	l.delegates = append(l.delegates, delegate{name: name, inst: inst})
	return nil
}

func (l *listInstance) unmount(name string, errorKey *key.Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, d := range l.delegates {
		if d.name != name {
			continue
		}
		d.inst.Close(errorKey)
		l.delegates = append(l.delegates[:i], l.delegates[i+1:]...)
		l.seen.Delete([]byte(name))
		return true
	}
	return false
}

func (l *listInstance) Close(errorKey *key.Key) error {
	l.mu.Lock()
	delegates := l.delegates
	l.delegates = nil
	l.mu.Unlock()

	var firstErr error
	for _, d := range delegates {
		if err := d.inst.Close(errorKey); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *listInstance) Init(definition *keyset.KeySet, parent *key.Key) plugin.Result {
	return l.fanOut(func(inst plugin.Instance) plugin.Result { return inst.Init(definition, parent) })
}

func (l *listInstance) Get(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	return l.fanOut(func(inst plugin.Instance) plugin.Result { return inst.Get(global, ks, parent) })
}

func (l *listInstance) Set(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	return l.fanOut(func(inst plugin.Instance) plugin.Result { return inst.Set(global, ks, parent) })
}

func (l *listInstance) Commit(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	return l.fanOut(func(inst plugin.Instance) plugin.Result { return inst.Commit(global, ks, parent) })
}

func (l *listInstance) Error(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	return l.fanOut(func(inst plugin.Instance) plugin.Result { return inst.Error(global, ks, parent) })
}

func (l *listInstance) fanOut(call func(plugin.Instance) plugin.Result) plugin.Result {
	l.mu.Lock()
	delegates := append([]delegate(nil), l.delegates...)
	l.mu.Unlock()

	if len(delegates) == 0 {
		return plugin.Success
	}
	sawUpdate := false
	for _, d := range delegates {
		switch call(d.inst) {
		case plugin.Error:
			return plugin.Error
		case plugin.Success, plugin.CacheHit:
			sawUpdate = true
		}
	}
	if sawUpdate {
		return plugin.Success
	}
	return plugin.NoUpdate
}

func (l *listInstance) GetFunction(name string) (interface{}, bool) {
	switch name {
	case "mountplugin":
		return MountFunc(func(pluginName string, cfg *keyset.KeySet, errorKey *key.Key) error {
			return l.mount(pluginName, cfg, errorKey)
		}), true
	case "unmountplugin":
		return UnmountFunc(func(pluginName string, errorKey *key.Key) bool {
			return l.unmount(pluginName, errorKey)
		}), true
	}
	return nil, false
}
