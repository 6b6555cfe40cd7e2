package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// reserved section name that maps to the tree root instead of a child.
const defaultSection = "default"

// ParseFile reads an ini-style configuration file. Every [section] heading
// maps to the subtree rooted at the section name; dot-separated section names
// build nested subtrees. The reserved [default] section maps to the tree root.
// Values of declared keys are type-coerced on assignment; unknown keys are
// stored as raw strings.
func (t *Tree) ParseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()
	if err := t.Parse(f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Parse reads the section-delimited key/value format from r. See ParseFile.
func (t *Tree) Parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	prefix := ""
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return fmt.Errorf("line %d: malformed section heading %q", lineno, line)
			}
			section := strings.TrimSpace(line[1 : len(line)-1])
			if section == defaultSection {
				prefix = ""
			} else {
				prefix = section + "."
			}
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("line %d: expected 'key = value', got %q", lineno, line)
		}
		key := prefix + strings.TrimSpace(k)
		if err := t.Set(key, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// ParseArgs overlays command-line style "--dotted.key value" pairs on top of
// previously parsed values. Only keys declared via AddParam are recognized;
// unknown flags are left untouched for other consumers. Both "--key value"
// and "--key=value" forms are accepted. Absent flags do not modify existing
// values.
func (t *Tree) ParseArgs(args []string) error {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		key, value := strings.TrimPrefix(arg, "--"), ""
		if k, v, ok := strings.Cut(key, "="); ok {
			key, value = k, v
		} else {
			if i+1 >= len(args) {
				continue
			}
			value = args[i+1]
		}
		n := t.lookup(key)
		if n == nil || !n.isLeaf() || !n.declared {
			continue
		}
		v, err := n.coerce(value)
		if err != nil {
			return err
		}
		n.value = v
		if !strings.Contains(arg, "=") {
			i++
		}
	}
	return nil
}

// ToText serializes the tree back into the section format understood by
// ParseFile. Root-level leaves appear under [default]. Round-trip property:
// parsing the output reproduces all declared leaf values exactly.
func (t *Tree) ToText() string {
	var b strings.Builder
	writeSection(&b, t.root, defaultSection)
	return b.String()
}

func writeSection(b *strings.Builder, n *node, section string) {
	var leaves, subs []string
	for _, name := range n.order {
		if n.children[name].isLeaf() {
			leaves = append(leaves, name)
		} else {
			subs = append(subs, name)
		}
	}
	if len(leaves) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "[%s]\n", section)
		for _, name := range leaves {
			fmt.Fprintf(b, "%s = %s\n", name, formatLeaf(n.children[name]))
		}
	}
	for _, name := range subs {
		sub := name
		if section != defaultSection {
			sub = section + "." + name
		}
		writeSection(b, n.children[name], sub)
	}
}

func formatLeaf(n *node) string {
	if list, ok := n.value.([]any); ok {
		parts := make([]string, len(list))
		for i, e := range list {
			parts[i] = formatValue(e)
		}
		return strings.Join(parts, ", ")
	}
	return formatValue(n.value)
}

// DeclaredKeys returns the fully qualified dotted keys of all declared
// parameters, sorted. Useful for usage output.
func (t *Tree) DeclaredKeys() []string {
	var keys []string
	collectDeclared(t.root, "", &keys)
	sort.Strings(keys)
	return keys
}

// Help returns the help text a key was declared with.
func (t *Tree) Help(key string) string {
	if n := t.lookup(key); n != nil {
		return n.help
	}
	return ""
}

func collectDeclared(n *node, prefix string, out *[]string) {
	for _, name := range n.order {
		c := n.children[name]
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		if c.isLeaf() {
			if c.declared {
				*out = append(*out, key)
			}
			continue
		}
		collectDeclared(c, key, out)
	}
}
