// Package kvtext is the line-based "name=value" encoding shared by the
// single-blob cloud storage plugins (s3, gcs, azure, hdfs). Unlike
// plugins/file it carries no metadata sidecar: a blob object has no sibling
// file to hold one, and spec.md's testable-property round-trip requirement
// (SPEC_FULL.md §8.9) only names file and cache, not the cloud backends.
package kvtext

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
)

// Encode renders ks as sorted "name=value" lines, one key per line.
func Encode(ks *keyset.KeySet) []byte {
	var buf bytes.Buffer
	ks.Each(func(k *key.Key) {
		buf.WriteString(k.Name())
		buf.WriteByte('=')
		buf.WriteString(escapeValue(k.Value()))
		buf.WriteByte('\n')
	})
	return buf.Bytes()
}

// Decode parses data's "name=value" lines into ks. Blank and malformed lines
// are skipped rather than treated as errors, since a hand-edited blob is a
// realistic way for these plugins' backing objects to be populated.
func Decode(data []byte, ks *keyset.KeySet) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexByte(line, '=')
		if i < 0 {
			continue
		}
		name, value := line[:i], line[i+1:]
		k, err := key.New(name, key.WithValue(unescapeValue(value)))
		if err != nil {
			continue
		}
		if err := ks.Append(k); err != nil {
			return err
		}
	}
	return sc.Err()
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
