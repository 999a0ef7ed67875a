package xt

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/internal/core/dsfield"
)

// Rule files carry extension parameters as loose maps. Byte-valued fields
// accept decimal, hex ("0x2e") or a symbolic name.

type dscpParams struct {
	DSCP   *int   `mapstructure:"dscp"`
	Class  string `mapstructure:"class"`
	Invert bool   `mapstructure:"invert"`
}

type tosMatchParams struct {
	Value  *int `mapstructure:"value"`
	Mask   *int `mapstructure:"mask"`
	Invert bool `mapstructure:"invert"`
}

type tosTargetParams struct {
	Value *int `mapstructure:"value"`
	Mask  *int `mapstructure:"mask"`
	And   *int `mapstructure:"and"`
	Or    *int `mapstructure:"or"`
	Xor   *int `mapstructure:"xor"`
}

// NewDSCPMatch builds a dscp match from {dscp|class, invert}.
func NewDSCPMatch(params map[string]any) (Match, error) {
	var p dscpParams
	if err := decodeParams(params, &p, ParseDSCPClass); err != nil {
		return nil, err
	}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	return &DSCPMatchInfo{DSCP: v, Invert: p.Invert}, nil
}

// NewDSCPTarget builds a DSCP target from {dscp|class}.
func NewDSCPTarget(params map[string]any) (Target, error) {
	var p dscpParams
	if err := decodeParams(params, &p, ParseDSCPClass); err != nil {
		return nil, err
	}
	if p.Invert {
		return nil, fmt.Errorf("%w: DSCP target does not take invert", core.ErrConfigInvalid)
	}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	return &DSCPTargetInfo{DSCP: v}, nil
}

// NewTOSMatch builds a tos match from {value, mask, invert}. Mask defaults
// to 0xff.
func NewTOSMatch(params map[string]any) (Match, error) {
	var p tosMatchParams
	if err := decodeParams(params, &p, ParseTOSName); err != nil {
		return nil, err
	}
	if p.Value == nil {
		return nil, fmt.Errorf("%w: tos match requires value", core.ErrConfigInvalid)
	}
	value, err := toByte("value", *p.Value)
	if err != nil {
		return nil, err
	}
	mask := dsfield.FullMask
	if p.Mask != nil {
		if mask, err = toByte("mask", *p.Mask); err != nil {
			return nil, err
		}
	}
	return &TOSMatchInfo{Value: value, Mask: mask, Invert: p.Invert}, nil
}

// NewTOSTarget builds a TOS target. Exactly one form is accepted:
// {value, mask} (mask defaults to 0xff), {and}, {or} or {xor}.
func NewTOSTarget(params map[string]any) (Target, error) {
	var p tosTargetParams
	if err := decodeParams(params, &p, ParseTOSName); err != nil {
		return nil, err
	}

	forms := 0
	for _, f := range []*int{p.Value, p.And, p.Or, p.Xor} {
		if f != nil {
			forms++
		}
	}
	if forms != 1 {
		return nil, fmt.Errorf("%w: TOS target needs exactly one of value, and, or, xor", core.ErrConfigInvalid)
	}
	if p.Mask != nil && p.Value == nil {
		return nil, fmt.Errorf("%w: TOS target mask only applies to value", core.ErrConfigInvalid)
	}

	switch {
	case p.And != nil:
		b, err := toByte("and", *p.And)
		if err != nil {
			return nil, err
		}
		return AndTOS(b), nil
	case p.Or != nil:
		b, err := toByte("or", *p.Or)
		if err != nil {
			return nil, err
		}
		return OrTOS(b), nil
	case p.Xor != nil:
		b, err := toByte("xor", *p.Xor)
		if err != nil {
			return nil, err
		}
		return XorTOS(b), nil
	}

	value, err := toByte("value", *p.Value)
	if err != nil {
		return nil, err
	}
	mask := dsfield.FullMask
	if p.Mask != nil {
		if mask, err = toByte("mask", *p.Mask); err != nil {
			return nil, err
		}
	}
	return SetTOS(value, mask), nil
}

func (p dscpParams) value() (uint8, error) {
	switch {
	case p.DSCP != nil && p.Class != "":
		return 0, fmt.Errorf("%w: dscp and class are mutually exclusive", core.ErrConfigInvalid)
	case p.Class != "":
		return ParseDSCPClass(p.Class)
	case p.DSCP != nil:
		return toByte("dscp", *p.DSCP)
	default:
		return 0, fmt.Errorf("%w: dscp or class is required", core.ErrConfigInvalid)
	}
}

// toByte narrows a decoded integer. Values that fit a byte but exceed the
// DSCP range are left for Check to reject.
func toByte(field string, v int) (uint8, error) {
	if v < 0 || v > 0xff {
		return 0, fmt.Errorf("%w: %s %d does not fit in a byte", core.ErrOutOfRange, field, v)
	}
	return uint8(v), nil
}

func decodeParams(params map[string]any, out any, names func(string) (uint8, error)) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       symbolHook(names),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return nil
}

// symbolHook resolves symbolic names for integer fields. Numeric strings are
// left to the weak decoder, which accepts 0x prefixes.
func symbolHook(names func(string) (uint8, error)) mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Int {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if _, err := strconv.ParseInt(s, 0, 64); err == nil {
			return s, nil
		}
		v, err := names(s)
		if err != nil {
			return nil, err
		}
		return int(v), nil
	}
}
