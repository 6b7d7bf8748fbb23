package diff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/brettbedarf/treefs"
	"gopkg.in/yaml.v3"
)

// compareStructured parses both contents and lists every semantic difference.
// An error means one side could not be parsed.
func compareStructured(a, b treefs.Node, old, neu []byte) ([]string, error) {
	oldValue, err := parseStructured(contentTypeOf(a, b), old)
	if err != nil {
		return nil, fmt.Errorf("%s: cannot parse %s content, comparing as text: %w", a.PrintablePath(), contentTypeOf(a, b), err)
	}
	newValue, err := parseStructured(contentTypeOf(b, a), neu)
	if err != nil {
		return nil, fmt.Errorf("%s: cannot parse %s content, comparing as text: %w", b.PrintablePath(), contentTypeOf(b, a), err)
	}
	c := structCompare{oldLabel: a.PrintablePath(), newLabel: b.PrintablePath()}
	c.compare("", oldValue, newValue)
	return c.messages, nil
}

// contentTypeOf picks the structured type of n, or of other when n is plain text.
func contentTypeOf(n, other treefs.Node) treefs.ContentType {
	if n.ContentType().Structured() {
		return n.ContentType()
	}
	return other.ContentType()
}

func parseStructured(ct treefs.ContentType, data []byte) (any, error) {
	var v any
	if ct == treefs.ContentTypeYAML {
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return normalizeYAML(v), nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// normalizeYAML turns the map[any]any yaml produces for non-string keys into map[string]any.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalizeYAML(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = normalizeYAML(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = normalizeYAML(child)
		}
		return t
	default:
		return v
	}
}

type structCompare struct {
	oldLabel string
	newLabel string
	messages []string
}

func (c *structCompare) add(format string, args ...any) {
	c.messages = append(c.messages, fmt.Sprintf(format, args...))
}

// compare walks old and neu in step. The top level value has the empty name.
func (c *structCompare) compare(name string, old, neu any) {
	if oldMap, ok := old.(map[string]any); ok {
		newMap, ok := neu.(map[string]any)
		if !ok {
			c.add("%s has type %s in %s and %s in %s", name, typeName(neu), c.newLabel, typeName(old), c.oldLabel)
			return
		}
		for _, key := range sortedKeys(newMap) {
			child := join(name, key)
			if _, ok := oldMap[key]; !ok {
				c.add("%s exists in %s but not in %s", child, c.newLabel, c.oldLabel)
				continue
			}
			c.compare(child, oldMap[key], newMap[key])
		}
		for _, key := range sortedKeys(oldMap) {
			if _, ok := newMap[key]; !ok {
				c.add("%s exists in %s but not in %s", join(name, key), c.oldLabel, c.newLabel)
			}
		}
		return
	}

	if newList, ok := neu.([]any); ok {
		oldList, ok := old.([]any)
		if !ok {
			c.add("%s has type %s in %s and %s in %s", name, typeName(neu), c.newLabel, typeName(old), c.oldLabel)
			return
		}
		if len(oldList) != len(newList) {
			c.add("%s is length %d in %s, and %d in %s", name, len(newList), c.newLabel, len(oldList), c.oldLabel)
		}
		for i := 0; i < len(oldList) && i < len(newList); i++ {
			c.compare(fmt.Sprintf("%s[%d]", name, i), oldList[i], newList[i])
		}
		return
	}

	if !scalarEqual(old, neu) {
		c.add("%s is %s in %s and %s in %s", name, inspect(neu), c.newLabel, inspect(old), c.oldLabel)
	}
}

func join(name, key string) string {
	if name == "" {
		return key
	}
	return name + "." + key
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// scalarEqual compares leaf values; maps and lists on one side only are never equal.
func scalarEqual(a, b any) bool {
	switch a.(type) {
	case map[string]any, []any:
		return false
	}
	switch b.(type) {
	case map[string]any, []any:
		return false
	}
	if an, ok := a.(json.Number); ok {
		if bn, ok := b.(json.Number); ok {
			return an == bn
		}
	}
	return a == b
}

func typeName(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case nil:
		return "null"
	case json.Number, int, int64, uint64, float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// inspect renders a value the way it would be written in JSON.
func inspect(v any) string {
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
