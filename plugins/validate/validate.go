// Package validate implements "validate", a minimal metadata/value
// validation hook (SPEC_FULL.md §4.J): the stand-in for the validation
// policy the core explicitly does not ship (spec.md §1 Non-goals) but that
// a runnable demo mountpoint needs. It checks on the set side only — a
// validator has no business rejecting what storage already persisted.
package validate

import (
	"regexp"
	"strings"
	"sync"

	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/registry"
)

func init() {
	registry.Register("validate", plugin.FactoryFunc(openValidate))
}

// rule is one user:/rules/#N entry: match is an exact key name or a
// "prefix*" glob (the only wildcard spec.md's "no specific on-disk format"
// non-goal leaves room for without pulling in a globbing library for
// something this small); pattern, if set, is a regexp the value must
// fully match; requireMeta, if set, names metadata keys the key must carry.
type rule struct {
	match       string
	pattern     *regexp.Regexp
	requireMeta []string
}

func (r rule) matches(name string) bool {
	if strings.HasSuffix(r.match, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(r.match, "*"))
	}
	return r.match == name
}

type validateInstance struct {
	mu    sync.Mutex
	rules []rule
}

func openValidate(cfg *keyset.KeySet, errorKey *key.Key) (plugin.Instance, error) {
	rules, err := parseRules(cfg)
	if err != nil {
		if errorKey != nil {
			kdberr.SetOn(errorKey, err)
		}
		return nil, err
	}
	return &validateInstance{rules: rules}, nil
}

func parseRules(cfg *keyset.KeySet) ([]rule, *kdberr.Error) {
	root := key.MustNew("user:/rules")
	rootParts := root.Parts()

	byIdx := map[int]*rule{}
	var idxs []int
	var parseErr *kdberr.Error
	cfg.Below(root).Each(func(k *key.Key) {
		if parseErr != nil {
			return
		}
		rel := k.Parts()[len(rootParts):]
		if len(rel) < 2 || !strings.HasPrefix(rel[0], "#") {
			return
		}
		idxStr := strings.TrimPrefix(rel[0], "#")
		idx := 0
		for _, c := range idxStr {
			if c < '0' || c > '9' {
				return
			}
			idx = idx*10 + int(c-'0')
		}
		r, ok := byIdx[idx]
		if !ok {
			r = &rule{}
			byIdx[idx] = r
			idxs = append(idxs, idx)
		}
		switch rel[1] {
		case "match":
			r.match = k.Value()
		case "regex":
			pat, err := regexp.Compile(k.Value())
			if err != nil {
				parseErr = kdberr.Installationf("validate", "rule %s: bad regex %q: %v", idxStr, k.Value(), err)
				return
			}
			r.pattern = pat
		case "requireMeta":
			r.requireMeta = append(r.requireMeta, k.Value())
		}
	})
	if parseErr != nil {
		return nil, parseErr
	}

	sortInts(idxs)
	out := make([]rule, 0, len(idxs))
	for _, idx := range idxs {
		if byIdx[idx].match != "" {
			out = append(out, *byIdx[idx])
		}
	}
	return out, nil
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func (v *validateInstance) Close(*key.Key) error { return nil }

func (v *validateInstance) Init(*keyset.KeySet, *key.Key) plugin.Result { return plugin.Success }

// Get never rejects: validation is a set-side gate only.
func (v *validateInstance) Get(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	return plugin.Success
}

// Set runs every configured rule against every key in ks during the storage
// phase only; every other set-side phase, prestorage included, passes
// through unchecked.
func (v *validateInstance) Set(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	if plugin.FromGlobal(global) != plugin.PhaseStorage {
		return plugin.Success
	}
	v.mu.Lock()
	rules := v.rules
	v.mu.Unlock()

	var failure *kdberr.Error
	ks.Each(func(k *key.Key) {
		if failure != nil {
			return
		}
		for _, r := range rules {
			if !r.matches(k.Name()) {
				continue
			}
			if r.pattern != nil && !r.pattern.MatchString(k.Value()) {
				failure = kdberr.Validationf("validate", "%s: value %q does not match %s", k.Name(), k.Value(), r.pattern.String())
				return
			}
			for _, m := range r.requireMeta {
				if _, ok := k.Meta(m); !ok {
					failure = kdberr.Validationf("validate", "%s: missing required metadata %q", k.Name(), m)
					return
				}
			}
		}
	})
	if failure != nil {
		kdberr.SetOn(parent, failure)
		return plugin.Error
	}
	return plugin.Success
}

// Commit and Error have nothing to do: validation only ever gates Set.
func (v *validateInstance) Commit(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	return plugin.Success
}

func (v *validateInstance) Error(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	return plugin.Success
}

func (v *validateInstance) GetFunction(string) (interface{}, bool) { return nil, false }
