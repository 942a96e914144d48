package mount

import (
	"sort"
	"strconv"
	"strings"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/registry"
)

// globalPluginSpec accumulates one system:/elektra/globalplugins/<position>/#N
// entry before it is opened.
type globalPluginSpec struct {
	name   string
	config *keyset.KeySet
}

// ParseGlobalPlugins reads system:/elektra/globalplugins/<position>/#N/{name,config}
// entries out of cfg (spec.md §4.E.1 step 3: "Mount the global plugins
// described by the configuration") and opens each declared plugin via reg,
// the same subtree-walk-then-open shape ParseMountpoints uses for the
// mountpoint table.
func ParseGlobalPlugins(cfg *keyset.KeySet, reg *registry.Registry, errorKey *key.Key) (GlobalPlugins, error) {
	root := key.MustNew("system:/elektra/globalplugins")
	sub := cfg.Below(root)
	rootParts := root.Parts()

	byPosition := map[string]map[int]*globalPluginSpec{}
	var posOrder []string

	sub.Each(func(k *key.Key) {
		rel := k.Parts()[len(rootParts):]
		if len(rel) < 3 {
			return
		}
		pos := rel[0]
		idx, err := strconv.Atoi(strings.TrimPrefix(rel[1], "#"))
		if err != nil {
			return
		}
		if byPosition[pos] == nil {
			byPosition[pos] = map[int]*globalPluginSpec{}
			posOrder = append(posOrder, pos)
		}
		sp, ok := byPosition[pos][idx]
		if !ok {
			sp = &globalPluginSpec{config: keyset.New(0)}
			byPosition[pos][idx] = sp
		}
		switch {
		case rel[2] == "name":
			sp.name = k.Value()
		case rel[2] == "config" && len(rel) > 3:
			configRelName := strings.Join(rel[3:], "/")
			nk := k.Dup(key.DupValue | key.DupMeta)
			_ = nk.SetName("user:/" + configRelName)
			sp.config.Append(nk)
		}
	})

	sort.Strings(posOrder)
	globals := GlobalPlugins{}
	for _, pos := range posOrder {
		var idxs []int
		for idx := range byPosition[pos] {
			idxs = append(idxs, idx)
		}
		sort.Ints(idxs)
		for _, idx := range idxs {
			sp := byPosition[pos][idx]
			if sp.name == "" {
				continue
			}
			factory, err := reg.Load(sp.name, "Factory")
			if err != nil {
				return nil, err
			}
			inst, err := factory.Open(sp.config, errorKey)
			if err != nil {
				return nil, err
			}
			reg.Track(sp.name, inst)
			globals[plugin.Position(pos)] = append(globals[plugin.Position(pos)], inst)
		}
	}
	return globals, nil
}

// MergeGlobalPlugins combines a into b (mutating neither), preserving a's
// positions before b's within each resulting slot — used by open to combine
// the configuration-declared globals (§4.E.1 step 3) with the contract's
// mountglobal requests (step 4) without one silently shadowing the other.
func MergeGlobalPlugins(a, b GlobalPlugins) GlobalPlugins {
	out := GlobalPlugins{}
	for pos, insts := range a {
		out[pos] = append(out[pos], insts...)
	}
	for pos, insts := range b {
		out[pos] = append(out[pos], insts...)
	}
	return out
}
