package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env composes the environment handed to the managed process.
// Base is the supervisor's own environment; Var holds fixed overrides from
// configuration that sit between the base and per-launch overrides.
type Env struct {
	Var Var // configured overrides (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.env = Parse(os.Environ())
}

// FromList replaces the cached base with kvs ("K=V" items).
func (e *Env) FromList(kvs []string) {
	e.env = Parse(kvs)
}

// Set sets a configured override K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Unset removes a configured override.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// Merge composes the final environment list applying order:
// base = OS env (or cached)
// then configured e.Var overrides
// then overrides (manifest environment_variables)
// Keys that appear in no override pass through unchanged. The result is
// sorted by key so launches are reproducible.
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
	for k, v := range overrides {
		if k == "" || strings.ContainsRune(k, '=') {
			continue
		}
		m[k] = v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

// Parse converts "K=V" items into a map. Items without '=' or with an empty
// key are skipped; later duplicates win.
func Parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
	return m
}
