package cache

import (
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
)

// ToWireSet flattens ks into its cacheable wire form.
func ToWireSet(ks *keyset.KeySet) WireSet {
	slice := ks.Slice()
	out := WireSet{Keys: make([]WireKey, len(slice))}
	for i, k := range slice {
		wk := WireKey{Name: k.Name()}
		v, binary := k.BinaryValue()
		wk.Value = append([]byte(nil), v...)
		wk.Binary = binary
		meta := map[string]string{}
		k.EachMeta(func(name, value string) { meta[name] = value })
		if len(meta) > 0 {
			wk.Meta = meta
		}
		out.Keys[i] = wk
	}
	return out
}

// FromWireSet reconstructs a fresh, detached KeySet from its wire form.
func FromWireSet(ws WireSet) (*keyset.KeySet, error) {
	ks := keyset.New(len(ws.Keys))
	for _, wk := range ws.Keys {
		opts := []key.Option{}
		if wk.Binary {
			opts = append(opts, key.WithBinary(wk.Value))
		} else {
			opts = append(opts, key.WithValue(string(wk.Value)))
		}
		for name, value := range wk.Meta {
			opts = append(opts, key.WithMeta(name, value))
		}
		k, err := key.New(wk.Name, opts...)
		if err != nil {
			return nil, err
		}
		if err := ks.Append(k); err != nil {
			return nil, err
		}
	}
	return ks, nil
}
