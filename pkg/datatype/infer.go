package datatype

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrInvalidLiteral  = errors.New("must be valid JSON")
	ErrLiteralMismatch = errors.New("literal does not match data type")
)

// Infer classifies a JSON literal. Integers are reported as Number and
// numbers with a fraction or exponent as Float.
func Infer(literal string) Code {
	if !gjson.Valid(literal) {
		return Undefined
	}

	result := gjson.Parse(literal)

	switch result.Type {
	case gjson.String:
		return String
	case gjson.True, gjson.False:
		return Boolean
	case gjson.Null:
		return Null
	case gjson.Number:
		if strings.ContainsAny(result.Raw, ".eE") {
			return Float
		}

		return Number
	case gjson.JSON:
		if result.IsArray() {
			return Array
		}

		return JSON
	default:
		return Undefined
	}
}

// CheckLiteral verifies that a JSON literal can be carried by a handle of
// type c, using the relaxed relation so an integer default suits a float.
func CheckLiteral(c Code, literal string) error {
	if !gjson.Valid(literal) {
		return ErrInvalidLiteral
	}

	inferred := Infer(literal)
	if inferred == Null || IsCompatible(inferred, c, true) {
		return nil
	}

	return fmt.Errorf("%w: %s is not %s",
		ErrLiteralMismatch, Describe(inferred), Describe(c))
}
