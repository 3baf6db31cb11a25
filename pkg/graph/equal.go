package graph

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// valuesEqual decides whether writing b over a would change node data.
// Containers are compared through their JSON encoding; a value that cannot
// be encoded compares unequal so the write goes through.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return snapshotEqual(a, b)
	}

	if !va.Comparable() || !vb.Comparable() {
		return false
	}

	return a == b
}

func snapshotEqual(a, b any) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}

	right, err := json.Marshal(b)
	if err != nil {
		return false
	}

	return bytes.Equal(left, right)
}
