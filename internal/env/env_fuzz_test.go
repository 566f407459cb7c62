package env

import (
	"strings"
	"testing"
)

// FuzzMerge feeds random globals and overrides through Merge to ensure no
// panics and basic well-formedness of the result.
func FuzzMerge(f *testing.F) {
	f.Add([]byte("A=1\nB=${A}-x"), []byte("C=y"))
	f.Add([]byte("FOO=${FOO}"), []byte("FOO=literal"))
	f.Add([]byte("X=${Y}\nY=${X}"), []byte("")) // cyclic-like

	f.Fuzz(func(t *testing.T, globalB []byte, overrideB []byte) {
		globals := splitNZ(string(globalB))
		if len(globals) > 20 {
			globals = globals[:20]
		}
		overrides := make(map[string]string)
		for _, kv := range splitNZ(string(overrideB)) {
			if i := strings.IndexByte(kv, '='); i > 0 {
				overrides[kv[:i]] = kv[i+1:]
			}
			if len(overrides) >= 20 {
				break
			}
		}

		e := New()
		e.env = Var{"BASE": "os"}
		e.SetAll(globals)
		out := e.Merge(overrides)

		seen := make(map[string]bool, len(out))
		for _, kv := range out {
			i := strings.IndexByte(kv, '=')
			if i <= 0 {
				t.Fatalf("bad pair: %q", kv)
			}
			k := kv[:i]
			if seen[k] {
				t.Fatalf("duplicate key %q in %v", k, out)
			}
			seen[k] = true
		}
		// Overrides pass through verbatim.
		for k, v := range overrides {
			if !seen[k] {
				t.Fatalf("override %q missing", k)
			}
			want := k + "=" + v
			found := false
			for _, kv := range out {
				if kv == want {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("override %q not verbatim in %v", want, out)
			}
		}
	})
}

// splitNZ splits s by newlines and returns non-empty trimmed lines.
func splitNZ(s string) []string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			out = append(out, ln)
		}
	}
	return out
}
