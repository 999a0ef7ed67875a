package xt

import (
	"fmt"
	"sort"
	"strings"

	"firestige.xyz/dsmark/internal/core"
)

// DSCP class selectors and per-hop behaviours (RFC 2474, 2597, 3246, 8622).
var dscpClasses = map[string]uint8{
	"CS0":  0x00,
	"CS1":  0x08,
	"CS2":  0x10,
	"CS3":  0x18,
	"CS4":  0x20,
	"CS5":  0x28,
	"CS6":  0x30,
	"CS7":  0x38,
	"BE":   0x00,
	"AF11": 0x0a,
	"AF12": 0x0c,
	"AF13": 0x0e,
	"AF21": 0x12,
	"AF22": 0x14,
	"AF23": 0x16,
	"AF31": 0x1a,
	"AF32": 0x1c,
	"AF33": 0x1e,
	"AF41": 0x22,
	"AF42": 0x24,
	"AF43": 0x26,
	"EF":   0x2e,
	"LE":   0x01,
}

// Legacy RFC 1349 TOS names, as full DS byte values.
var tosNames = map[string]uint8{
	"minimize-delay":       0x10,
	"maximize-throughput":  0x08,
	"maximize-reliability": 0x04,
	"minimize-cost":        0x02,
	"normal-service":       0x00,
}

// ParseDSCPClass returns the DSCP for a class name such as "AF41" or "ef".
func ParseDSCPClass(name string) (uint8, error) {
	if v, ok := dscpClasses[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("%w: unknown dscp class %q", core.ErrConfigInvalid, name)
}

// DSCPClassName returns the canonical class name for dscp, or "" if it has none.
func DSCPClassName(dscp uint8) string {
	best := ""
	for name, v := range dscpClasses {
		if v != dscp || name == "BE" {
			continue
		}
		if best == "" || name < best {
			best = name
		}
	}
	return best
}

// DSCPClasses lists the known class names in ascending DSCP order.
func DSCPClasses() []string {
	names := make([]string, 0, len(dscpClasses))
	for name := range dscpClasses {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := dscpClasses[names[i]], dscpClasses[names[j]]
		if a != b {
			return a < b
		}
		return names[i] < names[j]
	})
	return names
}

// ParseTOSName returns the DS byte for a symbolic TOS name such as
// "Minimize-Delay". Matching ignores case.
func ParseTOSName(name string) (uint8, error) {
	if v, ok := tosNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("%w: unknown tos name %q", core.ErrConfigInvalid, name)
}
