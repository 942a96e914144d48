package mount

import (
	"strings"

	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/registry"
)

// contractRoot is the key set subtree open(contract) accepts (spec.md §4.E.1
// step 4, §6 "Contract key set").
var contractRoot = key.MustNew("system:/elektra/contract")

// GlobalPlugins maps a global-plugin position (spec.md §3's KDB handle table
// of global plugins) to the ordered list of instances mounted there.
type GlobalPlugins map[plugin.Position][]plugin.Instance

// allPositions is every global position a mountglobal request populates
// (spec.md §6: "mount <pluginName> at every global position").
var allPositions = []plugin.Position{
	plugin.PositionPreGetStorage, plugin.PositionProcGetStorage,
	plugin.PositionPostGetStorage, plugin.PositionPostGetCleanup,
	plugin.PositionPreSetStorage, plugin.PositionPreSetCleanup,
	plugin.PositionPreCommit, plugin.PositionCommit, plugin.PositionPostCommit,
	plugin.PositionPreRollback, plugin.PositionRollback, plugin.PositionPostRollback,
}

// ProcessContract applies the contract key set passed to open (spec.md
// §4.E.1 step 4, §6): globalkeyset entries are merged verbatim into global
// (rebased under system:/elektra/globalkeyset), and each mountglobal/<name>
// request opens <name> once and mounts that instance directly at every
// global position. A "list" plugin must be loadable or every mountglobal
// request fails with an InstallationError; that load is only a presence
// check: no "list" instance is opened, and the requested plugins are not
// dispatched through one.
func ProcessContract(contract *keyset.KeySet, global *keyset.KeySet, reg *registry.Registry, errorKey *key.Key) (GlobalPlugins, error) {
	if contract == nil {
		return GlobalPlugins{}, nil
	}
	rootParts := contractRoot.Parts()

	pluginNames := map[string]bool{}
	var order []string

	contract.Below(contractRoot).Each(func(k *key.Key) {
		rel := k.Parts()[len(rootParts):]
		if len(rel) == 0 {
			return
		}
		switch rel[0] {
		case "globalkeyset":
			gk := k.Dup(key.DupValue | key.DupMeta)
			name := "system:/elektra/globalkeyset"
			if len(rel) > 1 {
				name += "/" + strings.Join(rel[1:], "/")
			}
			if err := gk.SetName(name); err == nil {
				global.Append(gk)
			}
		case "mountglobal":
			if len(rel) < 2 {
				return
			}
			name := rel[1]
			if !pluginNames[name] {
				pluginNames[name] = true
				order = append(order, name)
			}
		}
	})

	if len(order) == 0 {
		return GlobalPlugins{}, nil
	}

	if _, err := reg.Load("list", "Factory"); err != nil {
		return nil, kdberr.Installationf("mount", "mountglobal requested but no list plugin is mounted: %v", err)
	}

	globals := GlobalPlugins{}
	for _, name := range order {
		factory, err := reg.Load(name, "Factory")
		if err != nil {
			return nil, kdberr.Installationf("mount", "mountglobal %s: %v", name, err)
		}
		inst, err := factory.Open(keyset.New(0), errorKey)
		if err != nil {
			return nil, kdberr.Installationf("mount", "mountglobal %s: opening: %v", name, err)
		}
		reg.Track(name, inst)
		for _, pos := range allPositions {
			globals[pos] = append(globals[pos], inst)
		}
	}
	return globals, nil
}
