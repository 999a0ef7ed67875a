// Package ruleset evaluates an ordered table of DSCP/TOS rules against
// packets.
package ruleset

import (
	"fmt"
	"sync/atomic"

	"firestige.xyz/dsmark/internal/config"
	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/core/dsfield"
	"firestige.xyz/dsmark/internal/xt"
)

// Rule applies Target to packets of Family for which every match holds.
// A nil Target makes the rule count packets only.
type Rule struct {
	Name    string
	Family  core.Family
	Matches []xt.Match
	Target  xt.Target

	evaluated atomic.Uint64
	matched   atomic.Uint64
	rewritten atomic.Uint64
	dropped   atomic.Uint64
}

// RuleStats is a snapshot of one rule's counters.
type RuleStats struct {
	Name      string
	Evaluated uint64 // Packets of the rule's family seen
	Matched   uint64 // Packets for which every match held
	Rewritten uint64 // Packets whose DS field the target changed
	Dropped   uint64 // Packets the target dropped
}

// apply runs the rule on pkt.
func (r *Rule) apply(pkt dsfield.Packet) core.Verdict {
	if !r.Family.Accepts(pkt.Version()) {
		return core.VerdictContinue
	}
	r.evaluated.Add(1)

	for _, m := range r.Matches {
		if !m.Match(pkt) {
			return core.VerdictContinue
		}
	}
	r.matched.Add(1)

	if r.Target == nil {
		return core.VerdictContinue
	}
	before := dsfield.Read(pkt)
	v := r.Target.Target(pkt)
	if v == core.VerdictDrop {
		r.dropped.Add(1)
		return v
	}
	if dsfield.Read(pkt) != before {
		r.rewritten.Add(1)
	}
	return v
}

// Stats returns a snapshot of the rule counters.
func (r *Rule) Stats() RuleStats {
	return RuleStats{
		Name:      r.Name,
		Evaluated: r.evaluated.Load(),
		Matched:   r.matched.Load(),
		Rewritten: r.rewritten.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// Table is an ordered, immutable list of rules. Evaluate may be called
// from many goroutines at once.
type Table struct {
	name  string
	rules []*Rule
}

// NewTable creates a table from already checked rules.
func NewTable(name string, rules ...*Rule) *Table {
	return &Table{name: name, rules: rules}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Rules returns the rules in evaluation order.
func (t *Table) Rules() []*Rule { return t.rules }

// Evaluate walks the rules in order. A Drop verdict ends evaluation;
// Continue falls through to the next rule. The default verdict is Continue.
func (t *Table) Evaluate(pkt dsfield.Packet) core.Verdict {
	for _, r := range t.rules {
		if v := r.apply(pkt); v == core.VerdictDrop {
			return v
		}
	}
	return core.VerdictContinue
}

// Stats returns a snapshot of every rule's counters in evaluation order.
func (t *Table) Stats() []RuleStats {
	out := make([]RuleStats, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.Stats()
	}
	return out
}

// Install builds a table from configuration. Every extension is constructed
// and checked before the table is returned; the first failure rejects the
// whole table.
func Install(cfg config.RuleSetConfig, reg *xt.Registry) (*Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rules := make([]*Rule, 0, len(cfg.Rules))
	for _, rc := range cfg.Rules {
		family, err := core.ParseFamily(rc.Family)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rc.Name, err)
		}

		rule := &Rule{Name: rc.Name, Family: family}
		for _, mc := range rc.Matches {
			m, err := reg.NewMatch(mc.Name, family, mc.Params)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", rc.Name, err)
			}
			rule.Matches = append(rule.Matches, m)
		}
		if rc.Target != nil {
			tg, err := reg.NewTarget(rc.Target.Name, family, cfg.Name, rc.Target.Params)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", rc.Name, err)
			}
			rule.Target = tg
		}
		rules = append(rules, rule)
	}

	return NewTable(cfg.Name, rules...), nil
}
