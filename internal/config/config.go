// Package config implements a nested, typed, mergeable configuration tree
// with ini-style file ingestion and command-line overlay. Parameters declared
// via AddParam carry a type inferred from their default value; file and
// command-line values are coerced to that type on assignment. Undeclared keys
// are stored as raw strings.
package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
)

// Kind is the declared element type of a leaf node.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindFloat
	KindSub
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindSub:
		return "subtree"
	}
	return "unknown"
}

// Plurality describes whether a leaf holds a single value, a list, or a value
// that becomes a list only when the raw input contains commas.
type Plurality int

const (
	Single Plurality = iota
	List
	MaybeList
)

// CoercionError reports a value that cannot be converted to a key's declared
// type. It aborts startup; there is no recovery path.
type CoercionError struct {
	Key   string
	Value string
	Kind  Kind
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("config: cannot coerce %q to %s for key %q", e.Value, e.Kind, e.Key)
}

// node is a single tree node. A node is either a leaf (children == nil) or a
// container (children != nil), never both. The parent link exists only to
// compute the fully qualified dotted key for diagnostics.
type node struct {
	name     string
	parent   *node
	kind     Kind
	plural   Plurality
	declared bool
	help     string
	value    any // scalar, or []any for lists
	children map[string]*node
	order    []string
}

func newContainer(name string, parent *node) *node {
	return &node{
		name:     name,
		parent:   parent,
		kind:     KindSub,
		children: make(map[string]*node),
	}
}

func (n *node) isLeaf() bool { return n.children == nil }

// path returns the fully qualified dotted key of the node.
func (n *node) path() string {
	if n.parent == nil || n.parent.name == "" && n.parent.parent == nil {
		return n.name
	}
	p := n.parent.path()
	if p == "" {
		return n.name
	}
	return p + "." + n.name
}

// child returns the named child, creating an undeclared container on demand
// when create is set.
func (n *node) child(name string, create bool) *node {
	if c, ok := n.children[name]; ok {
		return c
	}
	if !create {
		return nil
	}
	c := newContainer(name, n)
	n.children[name] = c
	n.order = append(n.order, name)
	return c
}

// attach re-parents a subtree under n. This is the only operation that needs
// to update parent pointers.
func (n *node) attach(name string, sub *node) {
	sub.name = name
	sub.parent = n
	if _, ok := n.children[name]; !ok {
		n.order = append(n.order, name)
	}
	n.children[name] = sub
}

// Tree is the configuration tree root.
type Tree struct {
	root *node
}

// New returns an empty configuration tree.
func New() *Tree {
	return &Tree{root: newContainer("", nil)}
}

// AddParam declares a parameter under a dotted key with a default value and
// help text. The leaf type is inferred from the default: bool, int, float64,
// string, or a slice of those (which implies List plurality, with the element
// type taken from the first element). Intermediate containers are created for
// every dot-separated segment. Re-declaring an existing non-container key is a
// caller error that is warned about, not raised.
func (t *Tree) AddParam(key string, def any, help string) {
	t.addParam(key, def, help, Single)
}

// AddMaybeList declares a parameter that is parsed as a list when the raw
// value contains commas and as a single scalar otherwise. The element type is
// inferred from the default as in AddParam.
func (t *Tree) AddMaybeList(key string, def any, help string) {
	t.addParam(key, def, help, MaybeList)
}

func (t *Tree) addParam(key string, def any, help string, plural Plurality) {
	n := t.root
	segs := strings.Split(key, ".")
	for _, seg := range segs[:len(segs)-1] {
		c := n.child(seg, false)
		if c == nil {
			c = n.child(seg, true)
		} else if c.isLeaf() {
			log.Printf("WW: malformed configuration: %q declared below leaf key", key)
			return
		}
		n = c
	}
	leaf := segs[len(segs)-1]
	if existing, ok := n.children[leaf]; ok {
		if existing.isLeaf() {
			log.Printf("WW: parameter %q already declared, keeping existing declaration", key)
		} else {
			log.Printf("WW: parameter %q collides with a subtree", key)
		}
		return
	}

	kind, value, isList := inferKind(key, def)
	if isList && plural != MaybeList {
		plural = List
	}
	c := &node{
		name:     leaf,
		parent:   n,
		kind:     kind,
		plural:   plural,
		declared: true,
		help:     help,
		value:    value,
	}
	n.children[leaf] = c
	n.order = append(n.order, leaf)
}

// inferKind maps a default value to its declared kind and canonical storage
// form. List defaults are stored as []any; their element kind comes from the
// first element, or string when the list is empty.
func inferKind(key string, def any) (Kind, any, bool) {
	switch v := def.(type) {
	case bool:
		return KindBool, v, false
	case int:
		return KindInt, v, false
	case float64:
		return KindFloat, v, false
	case string:
		return KindString, v, false
	case []string:
		vs := make([]any, len(v))
		for i := range v {
			vs[i] = v[i]
		}
		return KindString, vs, true
	case []int:
		vs := make([]any, len(v))
		for i := range v {
			vs[i] = v[i]
		}
		return KindInt, vs, true
	case []float64:
		vs := make([]any, len(v))
		for i := range v {
			vs[i] = v[i]
		}
		return KindFloat, vs, true
	case []bool:
		vs := make([]any, len(v))
		for i := range v {
			vs[i] = v[i]
		}
		return KindBool, vs, true
	case []any:
		if len(v) == 0 {
			return KindString, []any{}, true
		}
		k, _, _ := inferKind(key, v[0])
		return k, append([]any(nil), v...), true
	default:
		panic(fmt.Sprintf("config: unsupported default type %T for key %q", def, key))
	}
}

// ParseBool converts the accepted boolean literals to a bool. The acceptance
// set is case-insensitive: true/t/1/yes/y and false/f/0/no/n. Anything else is
// a coercion error.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "t", "1", "yes", "y":
		return true, nil
	case "false", "f", "0", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("boolean expected, but received %q", s)
}

// coerceScalar converts a raw value to the given kind.
func coerceScalar(key string, raw any, kind Kind) (any, error) {
	switch v := raw.(type) {
	case bool:
		if kind == KindBool {
			return v, nil
		}
	case int:
		switch kind {
		case KindInt:
			return v, nil
		case KindFloat:
			return float64(v), nil
		case KindString:
			return strconv.Itoa(v), nil
		}
	case float64:
		switch kind {
		case KindFloat:
			return v, nil
		case KindString:
			return strconv.FormatFloat(v, 'g', -1, 64), nil
		}
	case string:
		switch kind {
		case KindBool:
			b, err := ParseBool(v)
			if err != nil {
				return nil, &CoercionError{Key: key, Value: v, Kind: kind}
			}
			return b, nil
		case KindInt:
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, &CoercionError{Key: key, Value: v, Kind: kind}
			}
			return i, nil
		case KindFloat:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, &CoercionError{Key: key, Value: v, Kind: kind}
			}
			return f, nil
		case KindString:
			return v, nil
		}
	}
	return nil, &CoercionError{Key: key, Value: fmt.Sprint(raw), Kind: kind}
}

// coerce applies the full coercion rules of a declared leaf to a raw value.
func (n *node) coerce(raw any) (any, error) {
	key := n.path()
	switch n.plural {
	case List:
		return coerceList(key, raw, n.kind)
	case MaybeList:
		if s, ok := raw.(string); ok {
			if strings.Contains(s, ",") {
				return coerceList(key, s, n.kind)
			}
			return coerceScalar(key, s, n.kind)
		}
		if _, ok := raw.([]any); ok {
			return coerceList(key, raw, n.kind)
		}
		return coerceScalar(key, raw, n.kind)
	default:
		return coerceScalar(key, raw, n.kind)
	}
}

func coerceList(key string, raw any, kind Kind) (any, error) {
	var elems []any
	switch v := raw.(type) {
	case []any:
		elems = v
	case string:
		if strings.TrimSpace(v) == "" {
			return []any{}, nil
		}
		for _, part := range strings.Split(v, ",") {
			elems = append(elems, strings.TrimSpace(part))
		}
	default:
		elems = []any{raw}
	}
	out := make([]any, len(elems))
	for i, e := range elems {
		c, err := coerceScalar(key, e, kind)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Set assigns a value to a dotted key. Intermediate containers are created on
// the fly. Declared keys run type coercion; undeclared keys store the raw
// value without coercion.
func (t *Tree) Set(key string, value any) error {
	n := t.root
	segs := strings.Split(key, ".")
	for _, seg := range segs[:len(segs)-1] {
		c := n.child(seg, true)
		if c.isLeaf() {
			log.Printf("WW: malformed configuration: assignment below leaf key %q", c.path())
			return nil
		}
		n = c
	}
	leaf := segs[len(segs)-1]
	c, ok := n.children[leaf]
	if !ok {
		c = &node{name: leaf, parent: n, kind: KindString}
		n.children[leaf] = c
		n.order = append(n.order, leaf)
	}
	if !c.isLeaf() {
		log.Printf("WW: malformed configuration: scalar assignment to subtree %q", c.path())
		return nil
	}
	if !c.declared {
		c.value = value
		return nil
	}
	v, err := c.coerce(value)
	if err != nil {
		return err
	}
	c.value = v
	return nil
}

// Get returns the value stored at a dotted key.
func (t *Tree) Get(key string) (any, bool) {
	n := t.lookup(key)
	if n == nil || !n.isLeaf() {
		return nil, false
	}
	return n.value, true
}

// Has reports whether a dotted key exists, leaf or subtree.
func (t *Tree) Has(key string) bool {
	return t.lookup(key) != nil
}

func (t *Tree) lookup(key string) *node {
	n := t.root
	for _, seg := range strings.Split(key, ".") {
		n = n.child(seg, false)
		if n == nil {
			return nil
		}
	}
	return n
}

// Sub returns a view on the subtree rooted at a dotted key. The view shares
// nodes with the parent tree.
func (t *Tree) Sub(key string) (*Tree, bool) {
	n := t.lookup(key)
	if n == nil || n.isLeaf() {
		return nil, false
	}
	return &Tree{root: n}, true
}

// Keys returns the direct child names of the tree root in insertion order.
func (t *Tree) Keys() []string {
	return append([]string(nil), t.root.order...)
}

// Bool returns the boolean value at key, or false when unset or of a
// different type.
func (t *Tree) Bool(key string) bool {
	v, _ := t.Get(key)
	b, _ := v.(bool)
	return b
}

// Int returns the integer value at key, or 0 when unset.
func (t *Tree) Int(key string) int {
	v, _ := t.Get(key)
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

// Float returns the float value at key, or 0 when unset. Integers are widened.
func (t *Tree) Float(key string) float64 {
	v, _ := t.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

// String returns the string value at key. Non-string scalars are formatted;
// unset keys yield the empty string.
func (t *Tree) String(key string) string {
	v, ok := t.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return formatValue(v)
}

// Strings returns the list at key with every element formatted as a string. A
// scalar value yields a one-element list.
func (t *Tree) Strings(key string) []string {
	v, ok := t.Get(key)
	if !ok || v == nil {
		return nil
	}
	elems, ok := v.([]any)
	if !ok {
		return []string{formatValue(v)}
	}
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = formatValue(e)
	}
	return out
}

// Ints returns the integer list at key. A scalar yields a one-element list.
func (t *Tree) Ints(key string) []int {
	v, ok := t.Get(key)
	if !ok || v == nil {
		return nil
	}
	elems, ok := v.([]any)
	if !ok {
		elems = []any{v}
	}
	out := make([]int, 0, len(elems))
	for _, e := range elems {
		if n, ok := e.(int); ok {
			out = append(out, n)
		}
	}
	return out
}

// Floats returns the float list at key, widening integer elements. A scalar
// yields a one-element list.
func (t *Tree) Floats(key string) []float64 {
	v, ok := t.Get(key)
	if !ok || v == nil {
		return nil
	}
	elems, ok := v.([]any)
	if !ok {
		elems = []any{v}
	}
	out := make([]float64, 0, len(elems))
	for _, e := range elems {
		switch n := e.(type) {
		case float64:
			out = append(out, n)
		case int:
			out = append(out, float64(n))
		}
	}
	return out
}

// RightMerge merges other into t. Where both sides hold a subtree under the
// same key the merge recurses; otherwise the right side's leaf overwrites the
// left. The merge is a map-union by key, never a list append, which makes it
// idempotent: merging the same tree twice equals merging it once.
func (t *Tree) RightMerge(other *Tree) {
	mergeNode(t.root, other.root)
}

func mergeNode(left, right *node) {
	for _, name := range right.order {
		rc := right.children[name]
		lc := left.child(name, false)
		if lc != nil && !lc.isLeaf() && !rc.isLeaf() {
			mergeNode(lc, rc)
			continue
		}
		if rc.isLeaf() {
			if lc == nil || !lc.isLeaf() {
				lc = &node{name: name, parent: left}
				if _, ok := left.children[name]; !ok {
					left.order = append(left.order, name)
				}
				left.children[name] = lc
			}
			lc.kind = rc.kind
			lc.plural = rc.plural
			lc.declared = rc.declared
			lc.help = rc.help
			lc.value = copyValue(rc.value)
			continue
		}
		// right is a subtree, left is a leaf or missing: overwrite with a copy
		left.attach(name, copyNode(rc))
	}
}

func copyNode(n *node) *node {
	c := &node{
		name:     n.name,
		kind:     n.kind,
		plural:   n.plural,
		declared: n.declared,
		help:     n.help,
		value:    copyValue(n.value),
	}
	if n.children != nil {
		c.children = make(map[string]*node, len(n.children))
		c.order = append([]string(nil), n.order...)
		for name, child := range n.children {
			cc := copyNode(child)
			cc.parent = c
			c.children[name] = cc
		}
	}
	return c
}

func copyValue(v any) any {
	if list, ok := v.([]any); ok {
		return append([]any(nil), list...)
	}
	return v
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}
