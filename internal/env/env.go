package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env composes the environment handed to framework shells: the OS
// environment as base, then configured globals, then per-shell overrides.
// ${VAR} expansion applies to global values only (they come from the config
// file and may reference the surrounding environment); per-shell overrides
// arrive over the API and are applied verbatim.
type Env struct {
	Var Var // global variables (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			if k == "" {
				continue
			}
			base[k] = kv[i+1:]
		}
	}
	e.env = base
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// SetAll parses "K=V" entries into globals, skipping malformed ones.
func (e *Env) SetAll(entries []string) {
	for _, kv := range entries {
		if i := strings.IndexByte(kv, '='); i > 0 {
			e.Set(kv[:i], kv[i+1:])
		}
	}
}

// Merge returns the composed environment in sorted "K=V" form: OS base,
// then expanded globals, then overrides.
func (e *Env) Merge(overrides map[string]string) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var)+len(overrides))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	// Expand global values against a snapshot of the composed map, so a
	// global referencing another key always sees the unexpanded value and
	// the result does not depend on iteration order.
	raw := make(Var, len(m))
	for k, v := range m {
		raw[k] = v
	}
	for k := range e.Var {
		if k == "" {
			continue
		}
		m[k] = expand(raw[k], raw)
	}
	for k, v := range overrides {
		if k == "" {
			continue
		}
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// expand performs simple ${VAR} substitution against m, no recursion.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
