// Package main implements kdbinspect, a developer diagnostic dumper: it
// opens a handle, runs a single get against one parent, and prints the
// resulting mountpoint table and key set. It is deliberately not a
// configuration-editing CLI (no set/commit path is wired up at all),
// mirroring the teacher's cmd/aisnodeprofile — a profiling aid, not an
// admin tool.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/elektrago/kdb/config"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/log"
	"github.com/elektrago/kdb/session"

	// Blank-imported for their init-time registry.Register side effects —
	// kdbinspect is the one binary in this module that needs every shipped
	// plugin loadable by name, the same way a real deployment would link
	// in whichever plugins its mountpoint configuration names.
	_ "github.com/elektrago/kdb/plugins/azure"
	_ "github.com/elektrago/kdb/plugins/file"
	_ "github.com/elektrago/kdb/plugins/gcs"
	_ "github.com/elektrago/kdb/plugins/hdfs"
	_ "github.com/elektrago/kdb/plugins/httpro"
	_ "github.com/elektrago/kdb/plugins/kube"
	_ "github.com/elektrago/kdb/plugins/list"
	_ "github.com/elektrago/kdb/plugins/s3"
	_ "github.com/elektrago/kdb/plugins/validate"
)

var (
	bootstrapPath = flag.String("bootstrap", "", "override the bootstrap config path (default: compiled-in path)")
	parentName    = flag.String("parent", "", "key name to get and dump (required)")
	logLevel      = flag.String("log-level", "info", "log level passed to config.LogConfig")
	dumpMeta      = flag.Bool("meta", false, "also print each key's metadata")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	if *parentName == "" {
		fmt.Fprintln(os.Stderr, "kdbinspect: -parent is required")
		return 2
	}

	logger := log.New("kdbinspect")

	cfg := config.Default()
	cfg.Log.Level = *logLevel
	if *bootstrapPath != "" {
		cfg.Bootstrap.Path = *bootstrapPath
	}

	parent, err := key.New(*parentName)
	if err != nil {
		logger.Errorf("invalid parent key %q: %v", *parentName, err)
		return 2
	}

	handle, err := session.Open(cfg, nil, parent)
	if err != nil {
		logger.Errorf("open failed: %v", err)
		printErrorMeta(parent)
		return 1
	}
	defer func() {
		for _, closeErr := range handle.Close(parent) {
			logger.Warningf("close: %v", closeErr)
		}
	}()

	ks := keyset.New(0)
	defer ks.Release()

	switch handle.Get(ks, parent) {
	case -1:
		logger.Errorf("get failed for %s", parent.Name())
		printErrorMeta(parent)
		return 1
	case 0:
		fmt.Printf("%s: no update (%d keys cached)\n", parent.Name(), ks.Len())
	default:
		fmt.Printf("%s: %d keys fetched\n", parent.Name(), ks.Len())
	}

	dumpMountpoints(handle)
	dumpKeys(ks)
	return 0
}

func dumpMountpoints(h *session.Handle) {
	fmt.Println("mountpoints:")
	for _, rec := range h.Table.All() {
		fmt.Printf("  %-24s prefix=%-32s readonly=%-5v filename=%s\n",
			rec.Name, rec.Prefix.Name(), rec.ReadOnly, rec.Filename)
	}
}

func dumpKeys(ks *keyset.KeySet) {
	fmt.Println("keys:")
	ks.Each(func(k *key.Key) {
		fmt.Printf("  %s = %s\n", k.Name(), k.Value())
		if *dumpMeta {
			k.EachMeta(func(name, value string) {
				fmt.Printf("      meta:/%s = %s\n", name, value)
			})
		}
	})
}

func printErrorMeta(parent *key.Key) {
	for _, name := range []string{"error/kind", "error/number", "error/reason", "error/description", "error/mountpoint"} {
		if v, ok := parent.Meta(name); ok && v != "" {
			fmt.Fprintf(os.Stderr, "  meta:/%s = %s\n", name, v)
		}
	}
}
