// Package sanitize prepares node data for persistence: it strips transient
// keys and bounds the size of what is stored.
package sanitize

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"unicode/utf8"

	"github.com/dukex/flowcanvas/pkg/models"
)

// Markers substituted for values that are cut or cannot be stored.
const (
	TruncatedMarker      = "…[truncated]"
	PrunedMarker         = "[pruned]"
	UnserializableMarker = "[unserializable]"
)

// DefaultDenyKeys are derived or bulky fields that are recomputed from the
// node inputs and are never persisted.
var DefaultDenyKeys = []string{
	"output", "outputs", "result", "results", "response", "rawResponse",
	"rawOutput", "rawData", "payload", "attachments", "files", "images",
	"imageData", "base64", "blob", "cache", "logs", "executionResult",
	"preview",
}

// DefaultAllowKeys are UI flags that always survive a reload.
var DefaultAllowKeys = []string{
	"expanded", "collapsed", "isExpanded", "isCollapsed", "enabled",
	"isEnabled", "active", "isActive", "label", "locked", "hidden",
}

var numberType = reflect.TypeFor[json.Number]()

// Limits bounds sanitized values.
type Limits struct {
	MaxStringLength int `json:"max_string_length" validate:"min=32"`
	MaxArrayItems   int `json:"max_array_items"   validate:"min=1"`
	MaxDepth        int `json:"max_depth"         validate:"min=1"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxStringLength: 2000,
		MaxArrayItems:   100,
		MaxDepth:        8,
	}
}

type Option func(*Sanitizer)

// WithDenyKeys replaces the deny-list.
func WithDenyKeys(keys ...string) Option {
	return func(s *Sanitizer) {
		s.deny = toSet(keys)
	}
}

// WithAllowKeys replaces the allow-list.
func WithAllowKeys(keys ...string) Option {
	return func(s *Sanitizer) {
		s.allow = toSet(keys)
	}
}

// Sanitizer is a pure transform; it keeps no state between calls and is
// safe for concurrent use.
type Sanitizer struct {
	limits Limits
	deny   map[string]struct{}
	allow  map[string]struct{}
}

func New(limits Limits, opts ...Option) *Sanitizer {
	defaults := DefaultLimits()

	if limits.MaxStringLength <= 0 {
		limits.MaxStringLength = defaults.MaxStringLength
	}

	if limits.MaxArrayItems <= 0 {
		limits.MaxArrayItems = defaults.MaxArrayItems
	}

	if limits.MaxDepth <= 0 {
		limits.MaxDepth = defaults.MaxDepth
	}

	s := &Sanitizer{
		limits: limits,
		deny:   toSet(DefaultDenyKeys),
		allow:  toSet(DefaultAllowKeys),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Sanitizer) Limits() Limits {
	return s.limits
}

// Sanitize returns storage-safe copies of nodes. The input is not modified.
// Selection is UI state and is cleared.
func (s *Sanitizer) Sanitize(nodes []models.Node) []models.Node {
	out := make([]models.Node, len(nodes))

	for i, n := range nodes {
		out[i] = models.Node{
			ID:       n.ID,
			Type:     n.Type,
			Position: n.Position,
			Data:     s.SanitizeData(n.Data),
		}
	}

	return out
}

// SanitizeGraph sanitizes the nodes of g and copies its edges.
func (s *Sanitizer) SanitizeGraph(g *models.Graph) *models.Graph {
	clone := g.Clone()
	clone.Nodes = s.Sanitize(clone.Nodes)

	return clone
}

// SanitizeData sanitizes one node's data map.
func (s *Sanitizer) SanitizeData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}

	out, ok := s.value(reflect.ValueOf(data), 0, map[uintptr]bool{}).(map[string]any)
	if !ok {
		return map[string]any{}
	}

	return out
}

func (s *Sanitizer) value(v reflect.Value, depth int, path map[uintptr]bool) any {
	switch v.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Bool:
		return v.Bool()
	case reflect.String:
		if v.Type() == numberType {
			return number(json.Number(v.String()))
		}

		return s.truncate(v.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return UnserializableMarker
		}

		return f
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}

		return s.value(v.Elem(), depth, path)
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}

		ptr := v.Pointer()
		if path[ptr] {
			return UnserializableMarker
		}

		path[ptr] = true
		defer delete(path, ptr)

		return s.value(v.Elem(), depth, path)
	case reflect.Map:
		return s.mapValue(v, depth, path)
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}

		if v.Type().Elem().Kind() == reflect.Uint8 {
			return s.truncate(base64.StdEncoding.EncodeToString(v.Bytes()))
		}

		return s.listValue(v, depth, path)
	case reflect.Array:
		return s.listValue(v, depth, path)
	case reflect.Struct:
		return s.structValue(v, depth, path)
	default:
		// Func, Chan, Complex64, Complex128, UnsafePointer.
		return UnserializableMarker
	}
}

func (s *Sanitizer) mapValue(v reflect.Value, depth int, path map[uintptr]bool) any {
	if v.IsNil() {
		return nil
	}

	if depth >= s.limits.MaxDepth {
		return PrunedMarker
	}

	ptr := v.Pointer()
	if path[ptr] {
		return UnserializableMarker
	}

	path[ptr] = true
	defer delete(path, ptr)

	out := make(map[string]any, v.Len())
	sources := make(map[string]keySource, v.Len())
	iter := v.MapRange()

	for iter.Next() {
		key, src := mapKey(iter.Key())
		if _, denied := s.deny[key]; denied {
			if _, allowed := s.allow[key]; !allowed {
				continue
			}
		}

		value := s.value(iter.Value(), depth+1, path)

		// Keys such as 1 and "1" print the same; keep one winner regardless
		// of map iteration order.
		if prev, taken := sources[key]; taken && !src.before(prev, value, out[key]) {
			continue
		}

		sources[key] = src
		out[key] = value
	}

	return out
}

// keySource describes the original key a stored key was printed from.
type keySource struct {
	isString bool
	typeName string
}

// before reports whether a key from src with value should replace the
// current holder prev of the same printed key. String keys win, then the
// lexically smaller key type, then the smaller JSON encoding of the value.
func (src keySource) before(prev keySource, value, prevValue any) bool {
	if src.isString != prev.isString {
		return src.isString
	}

	if src.typeName != prev.typeName {
		return src.typeName < prev.typeName
	}

	// Sanitized values hold JSON types only.
	a, _ := json.Marshal(value)
	b, _ := json.Marshal(prevValue)

	return bytes.Compare(a, b) < 0
}

func (s *Sanitizer) listValue(v reflect.Value, depth int, path map[uintptr]bool) any {
	if depth >= s.limits.MaxDepth {
		return PrunedMarker
	}

	if v.Kind() == reflect.Slice && v.Len() > 0 {
		ptr := v.Pointer()
		if path[ptr] {
			return UnserializableMarker
		}

		path[ptr] = true
		defer delete(path, ptr)
	}

	n := min(v.Len(), s.limits.MaxArrayItems)
	out := make([]any, n)

	for i := range n {
		out[i] = s.value(v.Index(i), depth+1, path)
	}

	return out
}

// structValue normalises a struct through its JSON encoding so the stored
// shape is the one a JSON round trip would produce.
func (s *Sanitizer) structValue(v reflect.Value, depth int, path map[uintptr]bool) any {
	if !v.CanInterface() {
		return UnserializableMarker
	}

	raw, err := json.Marshal(v.Interface())
	if err != nil {
		return UnserializableMarker
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var decoded any
	if err := decoder.Decode(&decoded); err != nil {
		return UnserializableMarker
	}

	return s.value(reflect.ValueOf(decoded), depth, path)
}

func (s *Sanitizer) truncate(str string) string {
	limit := s.limits.MaxStringLength
	if utf8.RuneCountInString(str) <= limit {
		return str
	}

	runes := []rune(str)
	markerLen := utf8.RuneCountInString(TruncatedMarker)

	if limit <= markerLen {
		return string(runes[:limit])
	}

	return string(runes[:limit-markerLen]) + TruncatedMarker
}

func number(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}

	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return UnserializableMarker
	}

	return f
}

func mapKey(k reflect.Value) (string, keySource) {
	if k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}

	src := keySource{isString: k.Kind() == reflect.String}
	if k.IsValid() {
		src.typeName = k.Type().String()
	}

	switch {
	case src.isString:
		return k.String(), src
	case k.IsValid() && k.CanInterface():
		return fmt.Sprint(k.Interface()), src
	default:
		return k.String(), src
	}
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}

	return set
}
