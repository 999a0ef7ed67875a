package xt

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/dsmark/internal/core"
)

// TableMangle is the only table the DSCP and TOS targets may be used in.
const TableMangle = "mangle"

// MatchSpec registers a match extension for one address family.
type MatchSpec struct {
	Name     string
	Revision uint8
	Family   core.Family
	New      func(params map[string]any) (Match, error)
}

// TargetSpec registers a target extension for one address family. An empty
// Table allows any table.
type TargetSpec struct {
	Name     string
	Revision uint8
	Family   core.Family
	Table    string
	New      func(params map[string]any) (Target, error)
}

type specKey struct {
	name   string
	family core.Family
}

// alias maps a legacy module name onto an extension, optionally pinned to
// one family (ipt_ names are IPv4 only, ip6t_ names IPv6 only).
type alias struct {
	name   string
	family core.Family
}

// Registry holds the installed extensions. It is safe for concurrent use;
// lookups happen at rule install time only.
type Registry struct {
	mu      sync.RWMutex
	matches map[specKey]MatchSpec
	targets map[specKey]TargetSpec
	aliases map[string]alias
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		matches: make(map[specKey]MatchSpec),
		targets: make(map[specKey]TargetSpec),
		aliases: make(map[string]alias),
	}
}

// DefaultRegistry returns a registry with the dscp, tos, DSCP and TOS
// extensions and their legacy aliases.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		panic(err)
	}
	return r
}

// RegisterBuiltins adds the built-in extensions to r.
func RegisterBuiltins(r *Registry) error {
	for _, family := range []core.Family{core.FamilyIPv4, core.FamilyIPv6} {
		if err := r.RegisterMatch(MatchSpec{Name: "dscp", Revision: 0, Family: family, New: NewDSCPMatch}); err != nil {
			return err
		}
		if err := r.RegisterMatch(MatchSpec{Name: "tos", Revision: 1, Family: family, New: NewTOSMatch}); err != nil {
			return err
		}
		if err := r.RegisterTarget(TargetSpec{Name: "DSCP", Revision: 0, Family: family, Table: TableMangle, New: NewDSCPTarget}); err != nil {
			return err
		}
		if err := r.RegisterTarget(TargetSpec{Name: "TOS", Revision: 1, Family: family, Table: TableMangle, New: NewTOSTarget}); err != nil {
			return err
		}
	}

	aliases := []struct {
		alias  string
		name   string
		family core.Family
	}{
		{"ipt_dscp", "dscp", core.FamilyIPv4},
		{"ip6t_dscp", "dscp", core.FamilyIPv6},
		{"ipt_tos", "tos", core.FamilyIPv4},
		{"ip6t_tos", "tos", core.FamilyIPv6},
		{"ipt_DSCP", "DSCP", core.FamilyIPv4},
		{"ip6t_DSCP", "DSCP", core.FamilyIPv6},
		{"ipt_TOS", "TOS", core.FamilyIPv4},
		{"ip6t_TOS", "TOS", core.FamilyIPv6},
		{"xt_DSCP", "DSCP", core.FamilyUnspec},
	}
	for _, a := range aliases {
		if err := r.Alias(a.alias, a.name, a.family); err != nil {
			return err
		}
	}
	return nil
}

// RegisterMatch adds a match extension.
func (r *Registry) RegisterMatch(spec MatchSpec) error {
	if spec.Name == "" || spec.New == nil {
		return fmt.Errorf("match registration requires a name and constructor")
	}
	if spec.Family != core.FamilyIPv4 && spec.Family != core.FamilyIPv6 {
		return fmt.Errorf("match '%s': %w %s", spec.Name, core.ErrUnsupportedFamily, spec.Family)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := specKey{spec.Name, spec.Family}
	if _, exists := r.matches[key]; exists {
		return fmt.Errorf("match '%s' for %s already registered", spec.Name, spec.Family)
	}
	r.matches[key] = spec
	return nil
}

// RegisterTarget adds a target extension.
func (r *Registry) RegisterTarget(spec TargetSpec) error {
	if spec.Name == "" || spec.New == nil {
		return fmt.Errorf("target registration requires a name and constructor")
	}
	if spec.Family != core.FamilyIPv4 && spec.Family != core.FamilyIPv6 {
		return fmt.Errorf("target '%s': %w %s", spec.Name, core.ErrUnsupportedFamily, spec.Family)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := specKey{spec.Name, spec.Family}
	if _, exists := r.targets[key]; exists {
		return fmt.Errorf("target '%s' for %s already registered", spec.Name, spec.Family)
	}
	r.targets[key] = spec
	return nil
}

// Alias makes name reachable under another name. A family other than
// FamilyUnspec restricts the alias to rules of that family.
func (r *Registry) Alias(aliasName, name string, family core.Family) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.aliases[aliasName]; exists {
		return fmt.Errorf("alias '%s' already registered", aliasName)
	}
	r.aliases[aliasName] = alias{name: name, family: family}
	return nil
}

// NewMatch builds and checks a match for rules of the given family. An inet
// rule needs the extension registered for both IPv4 and IPv6.
func (r *Registry) NewMatch(name string, family core.Family, params map[string]any) (Match, error) {
	spec, err := r.lookupMatch(name, family)
	if err != nil {
		return nil, fmt.Errorf("match '%s': %w", name, err)
	}
	m, err := spec.New(params)
	if err != nil {
		return nil, fmt.Errorf("match '%s': %w", name, err)
	}
	if err := m.Check(); err != nil {
		return nil, fmt.Errorf("match '%s': %w", name, err)
	}
	return m, nil
}

// NewTarget builds and checks a target for rules of the given family in the
// given table.
func (r *Registry) NewTarget(name string, family core.Family, table string, params map[string]any) (Target, error) {
	spec, err := r.lookupTarget(name, family, table)
	if err != nil {
		return nil, fmt.Errorf("target '%s': %w", name, err)
	}
	t, err := spec.New(params)
	if err != nil {
		return nil, fmt.Errorf("target '%s': %w", name, err)
	}
	if err := t.Check(); err != nil {
		return nil, fmt.Errorf("target '%s': %w", name, err)
	}
	return t, nil
}

func (r *Registry) lookupMatch(name string, family core.Family) (MatchSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved, err := r.resolve(name, family)
	if err != nil {
		return MatchSpec{}, err
	}
	families := familiesOf(family)
	if len(families) == 0 {
		return MatchSpec{}, fmt.Errorf("%w %s", core.ErrUnsupportedFamily, family)
	}

	var spec MatchSpec
	for _, f := range families {
		s, ok := r.matches[specKey{resolved, f}]
		if !ok {
			for k := range r.matches {
				if k.name == resolved {
					return MatchSpec{}, fmt.Errorf("%w %s", core.ErrUnsupportedFamily, f)
				}
			}
			return MatchSpec{}, core.ErrNotFound
		}
		spec = s
	}
	return spec, nil
}

func (r *Registry) lookupTarget(name string, family core.Family, table string) (TargetSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved, err := r.resolve(name, family)
	if err != nil {
		return TargetSpec{}, err
	}
	families := familiesOf(family)
	if len(families) == 0 {
		return TargetSpec{}, fmt.Errorf("%w %s", core.ErrUnsupportedFamily, family)
	}

	var spec TargetSpec
	for _, f := range families {
		s, ok := r.targets[specKey{resolved, f}]
		if !ok {
			for k := range r.targets {
				if k.name == resolved {
					return TargetSpec{}, fmt.Errorf("%w %s", core.ErrUnsupportedFamily, f)
				}
			}
			return TargetSpec{}, core.ErrNotFound
		}
		if s.Table != "" && s.Table != table {
			return TargetSpec{}, fmt.Errorf("%w: table '%s', want '%s'", core.ErrTableMismatch, table, s.Table)
		}
		spec = s
	}
	return spec, nil
}

// Matches lists the registered match extensions ordered by name and family.
func (r *Registry) Matches() []MatchSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]MatchSpec, 0, len(r.matches))
	for _, s := range r.matches {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Family < out[j].Family
	})
	return out
}

// Targets lists the registered target extensions ordered by name and family.
func (r *Registry) Targets() []TargetSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TargetSpec, 0, len(r.targets))
	for _, s := range r.targets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Family < out[j].Family
	})
	return out
}

// Aliases returns alias -> extension name.
func (r *Registry) Aliases() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.aliases))
	for k, a := range r.aliases {
		out[k] = a.name
	}
	return out
}

// resolve follows an alias and checks its family pin. Callers hold r.mu.
func (r *Registry) resolve(name string, family core.Family) (string, error) {
	a, ok := r.aliases[name]
	if !ok {
		return name, nil
	}
	if a.family != core.FamilyUnspec && a.family != family {
		return "", fmt.Errorf("'%s' is %s only, rule is %s: %w", name, a.family, family, core.ErrUnsupportedFamily)
	}
	return a.name, nil
}

func familiesOf(f core.Family) []core.Family {
	switch f {
	case core.FamilyIPv4:
		return []core.Family{core.FamilyIPv4}
	case core.FamilyIPv6:
		return []core.Family{core.FamilyIPv6}
	case core.FamilyINet:
		return []core.Family{core.FamilyIPv4, core.FamilyIPv6}
	default:
		return nil
	}
}
