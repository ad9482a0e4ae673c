package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// validateArgs checks required fields and the JSON type of every scalar
// argument the schema declares. Unknown arguments are ignored.
func validateArgs(params map[string]any, args map[string]any) error {
	for _, name := range requiredNames(params) {
		v, ok := args[name]
		if !ok || v == nil {
			return fmt.Errorf("missing required argument %q", name)
		}
	}

	props, _ := params["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, ok := args[name]
		if !ok || v == nil {
			continue
		}
		def, _ := props[name].(map[string]any)
		typ, _ := def["type"].(string)
		if typ == "integer" {
			if f, ok := toFloat(v); ok && outOfIntRange(f) {
				return fmt.Errorf("argument %q out of range: %v", name, v)
			}
		}
		if !matchesType(typ, v) {
			return fmt.Errorf("argument %q must be %s, got %T", name, typ, v)
		}
	}
	return nil
}

func requiredNames(params map[string]any) []string {
	switch req := params["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func matchesType(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "integer":
		_, ok := toInt(v)
		return ok
	case "number":
		_, ok := toFloat(v)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		switch v.(type) {
		case []any, []string:
			return true
		}
		return false
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// toInt accepts whole numbers that fit in an int32.
func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || outOfIntRange(f) {
		return 0, false
	}
	return int(f), true
}

func outOfIntRange(f float64) bool {
	return f < math.MinInt32 || f > math.MaxInt32
}

func stringArg(args map[string]any, key, fallback string) string {
	if s, ok := args[key].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

func intArg(args map[string]any, key string, fallback int) int {
	if n, ok := toInt(args[key]); ok {
		return n
	}
	return fallback
}

// optionalInt distinguishes an absent argument from a zero value.
func optionalInt(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false
	}
	return toInt(v)
}

func stringsArg(args map[string]any, key string) []string {
	switch list := args[key].(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
