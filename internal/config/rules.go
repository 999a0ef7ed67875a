package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"firestige.xyz/dsmark/internal/core"
)

// DefaultTable is the table a rule set installs into when it names none.
const DefaultTable = "mangle"

// RuleSetConfig is one table of marking rules.
type RuleSetConfig struct {
	Name  string       `json:"name" yaml:"name" mapstructure:"name"`
	Rules []RuleConfig `json:"rules" yaml:"rules" mapstructure:"rules"`
}

// RuleConfig is one rule. All matches must hold for the target to run. A
// rule without a target only counts packets.
type RuleConfig struct {
	Name    string            `json:"name" yaml:"name" mapstructure:"name"`
	Family  string            `json:"family" yaml:"family" mapstructure:"family"` // ipv4 / ipv6 / inet (default)
	Matches []ExtensionConfig `json:"matches" yaml:"matches" mapstructure:"matches"`
	Target  *ExtensionConfig  `json:"target" yaml:"target" mapstructure:"target"`
}

// ExtensionConfig names a match or target extension and its parameters.
type ExtensionConfig struct {
	Name   string         `json:"name" yaml:"name" mapstructure:"name"`
	Params map[string]any `json:"params" yaml:"params" mapstructure:"params"`
}

// Validate checks the rule set structure and fills defaults: the table name
// defaults to mangle, the family to inet and rule names to rule-N. Extension
// parameters are checked later, when the rule set is installed.
func (rs *RuleSetConfig) Validate() error {
	if rs.Name == "" {
		rs.Name = DefaultTable
	}

	seen := make(map[string]bool, len(rs.Rules))
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("rule[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true

		family, err := core.ParseFamily(r.Family)
		if err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.Family = family.String()

		for j, m := range r.Matches {
			if m.Name == "" {
				return fmt.Errorf("rule %q: match[%d]: name is required", r.Name, j)
			}
		}
		if r.Target != nil && r.Target.Name == "" {
			return fmt.Errorf("rule %q: target name is required", r.Name)
		}
	}
	return nil
}

// ParseRuleSet parses a rule set from JSON.
func ParseRuleSet(data []byte) (*RuleSetConfig, error) {
	var rs RuleSetConfig
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rule set: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// ParseRuleSetYAML parses a rule set from YAML.
func ParseRuleSetYAML(data []byte) (*RuleSetConfig, error) {
	var rs RuleSetConfig
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rule set: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// ParseRuleSetAuto picks the parser from the file extension. Anything other
// than .json is read as YAML.
func ParseRuleSetAuto(data []byte, filename string) (*RuleSetConfig, error) {
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		return ParseRuleSet(data)
	}
	return ParseRuleSetYAML(data)
}

// LoadRuleSet reads and parses a rule set file.
func LoadRuleSet(path string) (*RuleSetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	rs, err := ParseRuleSetAuto(data, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}
