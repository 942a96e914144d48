package file

import (
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/registry"
)

func init() {
	registry.Register("file/resolver", plugin.FactoryFunc(openResolver))
}

// resolverInstance is "file/resolver": a no-op placeholder. All of the
// actual resolving (flock, witness comparison) lives in storageInstance,
// since GetFunction is only ever consulted on a mountpoint's designated
// /backend plugin (storageInstance for every hardcoded/bootstrap
// mountpoint) — this module exists so a mountpoint declaration naming
// "file/resolver" explicitly still resolves to a loadable module, matching
// the two-plugin resolver+storage convention spec.md's GLOSSARY describes.
type resolverInstance struct{}

func openResolver(*keyset.KeySet, *key.Key) (plugin.Instance, error) {
	return resolverInstance{}, nil
}

func (resolverInstance) Close(*key.Key) error                                          { return nil }
func (resolverInstance) Init(*keyset.KeySet, *key.Key) plugin.Result                   { return plugin.Success }
func (resolverInstance) Get(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result    { return plugin.Success }
func (resolverInstance) Set(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result    { return plugin.Success }
func (resolverInstance) Commit(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result { return plugin.Success }
func (resolverInstance) Error(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result  { return plugin.Success }
func (resolverInstance) GetFunction(string) (interface{}, bool)                        { return nil, false }
