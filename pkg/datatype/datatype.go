// Package datatype holds the closed alphabet of handle data-type codes and the
// compatibility relation between them.
package datatype

import (
	"errors"
	"fmt"
)

// Code is a one-character data-type code carried by a handle.
type Code string

const (
	String    Code = "s"
	Number    Code = "n"
	Boolean   Code = "b"
	JSON      Code = "j"
	Array     Code = "a"
	BigInt    Code = "g"
	Float     Code = "f"
	Any       Code = "x"
	Undefined Code = "u"
	Symbol    Code = "y"
	Null      Code = "l"
)

// Rule names which part of the relation decided a match.
type Rule string

const (
	RuleNone     Rule = "none"
	RuleExact    Rule = "exact"
	RuleWildcard Rule = "wildcard"
	RuleRelaxed  Rule = "relaxed"
)

const (
	ConfidenceExact   = 1.0
	ConfidenceRelaxed = 0.5
)

// Match is the outcome of comparing a source code with a target code.
type Match struct {
	Compatible bool
	Confidence float64
	Rule       Rule
}

// ErrUnknownCode is returned by Parse for codes outside the alphabet.
var ErrUnknownCode = errors.New("unknown data type code")

var (
	labels = map[Code]string{
		String:    "string",
		Number:    "number",
		Boolean:   "boolean",
		JSON:      "JSON",
		Array:     "array",
		BigInt:    "bigint",
		Float:     "float",
		Any:       "any",
		Undefined: "undefined",
		Symbol:    "symbol",
		Null:      "null",
	}

	// ordered keeps listings stable.
	ordered = []Code{
		String, Number, Boolean, JSON, Array, BigInt,
		Float, Any, Undefined, Symbol, Null,
	}

	relaxedPairs = map[Code][]Code{
		String: {JSON},
		JSON:   {String, Array},
		Number: {Float, BigInt},
		Float:  {Number},
		Array:  {JSON},
		BigInt: {Number},
	}
)

// All returns every code of the alphabet in a stable order.
func All() []Code {
	out := make([]Code, len(ordered))
	copy(out, ordered)

	return out
}

// Valid reports whether c belongs to the alphabet.
func (c Code) Valid() bool {
	_, ok := labels[c]

	return ok
}

func (c Code) String() string {
	return Describe(c)
}

// Parse converts either a code or its label into a Code.
func Parse(s string) (Code, error) {
	if c := Code(s); c.Valid() {
		return c, nil
	}

	for code, label := range labels {
		if label == s {
			return code, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownCode, s)
}

// Describe returns the human-readable label for a code.
func Describe(c Code) string {
	if label, ok := labels[c]; ok {
		return label
	}

	return fmt.Sprintf("unknown (%s)", string(c))
}

// IsCompatible reports whether a value of type src may flow into dst.
func IsCompatible(src, dst Code, relaxed bool) bool {
	return Evaluate(src, dst, relaxed).Compatible
}

// Evaluate compares src with dst. The wildcard matches anything on either
// side; otherwise codes must be equal, unless relaxed rules are enabled and
// the ordered pair is one of the known lossy conversions.
func Evaluate(src, dst Code, relaxed bool) Match {
	switch {
	case src == Any || dst == Any:
		return Match{Compatible: true, Confidence: ConfidenceExact, Rule: RuleWildcard}
	case src == dst:
		return Match{Compatible: true, Confidence: ConfidenceExact, Rule: RuleExact}
	case relaxed && relaxedPair(src, dst):
		return Match{Compatible: true, Confidence: ConfidenceRelaxed, Rule: RuleRelaxed}
	default:
		return Match{Compatible: false, Rule: RuleNone}
	}
}

// CompatibleTargets lists the target codes that accept src.
func CompatibleTargets(src Code, relaxed bool) []Code {
	var out []Code

	for _, c := range ordered {
		if IsCompatible(src, c, relaxed) {
			out = append(out, c)
		}
	}

	return out
}

func relaxedPair(src, dst Code) bool {
	for _, c := range relaxedPairs[src] {
		if c == dst {
			return true
		}
	}

	return false
}
