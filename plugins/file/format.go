package file

import (
	"bufio"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// metaSidecarPath returns the JSON sidecar path carrying metadata the
// line-based main file can't express, chosen to visibly differ in on-disk
// syntax from the bootstrap storage format per spec.md's "no specific
// on-disk format is mandated" non-goal.
func metaSidecarPath(path string) string { return path + ".meta.json" }

// readFile loads path's key=value lines plus its metadata sidecar (if any)
// into ks. A missing main file is not an error: the backend is simply
// empty so far.
func readFile(path string, ks *keyset.KeySet) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "file: opening %s", path)
	}
	defer f.Close()

	meta, err := readMetaSidecar(path)
	if err != nil {
		return err
	}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := splitLine(line)
		if !ok {
			continue
		}
		k, err := key.New(name, key.WithValue(unescapeValue(value)))
		if err != nil {
			continue
		}
		for mname, mvalue := range meta[name] {
			k.SetMeta(mname, mvalue)
		}
		if err := ks.Append(k); err != nil {
			return errors.Wrapf(err, "file: appending %s", name)
		}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrapf(err, "file: reading %s", path)
	}
	return nil
}

func splitLine(line string) (name, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	return line[:i], line[i+1:], true
}

// writeFile atomically rewrites path's contents (it is itself a temporary
// identifier — see fileState.currentFilename — so a plain write is
// already atomic with respect to the real path, which only becomes visible
// at commit's rename) from ks, alongside a metadata sidecar written only
// when at least one key actually carries metadata.
func writeFile(path string, ks *keyset.KeySet) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "file: creating %s", path)
	}
	defer f.Close()

	meta := map[string]map[string]string{}
	w := bufio.NewWriter(f)
	ks.Each(func(k *key.Key) {
		w.WriteString(k.Name())
		w.WriteByte('=')
		w.WriteString(escapeValue(k.Value()))
		w.WriteByte('\n')
		entry := map[string]string{}
		k.EachMeta(func(name, value string) { entry[name] = value })
		if len(entry) > 0 {
			meta[k.Name()] = entry
		}
	})
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "file: flushing %s", path)
	}
	if err := f.Sync(); err != nil {
		return errors.Wrapf(err, "file: syncing %s", path)
	}
	return writeMetaSidecar(path, meta)
}

func readMetaSidecar(path string) (map[string]map[string]string, error) {
	raw, err := os.ReadFile(metaSidecarPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "file: reading metadata sidecar for %s", path)
	}
	var meta map[string]map[string]string
	if err := jsonAPI.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrapf(err, "file: decoding metadata sidecar for %s", path)
	}
	return meta, nil
}

func writeMetaSidecar(path string, meta map[string]map[string]string) error {
	sidecar := metaSidecarPath(path)
	if len(meta) == 0 {
		err := os.Remove(sidecar)
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "file: removing stale metadata sidecar for %s", path)
		}
		return nil
	}
	raw, err := jsonAPI.Marshal(meta)
	if err != nil {
		return errors.Wrapf(err, "file: encoding metadata sidecar for %s", path)
	}
	if err := os.WriteFile(sidecar, raw, 0o644); err != nil {
		return errors.Wrapf(err, "file: writing metadata sidecar for %s", path)
	}
	return nil
}

func escapeValue(v string) string {
	r := strings.NewReplacer("\\", "\\\\", "\n", "\\n")
	return r.Replace(v)
}

func unescapeValue(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			switch v[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(v[i])
	}
	return b.String()
}
