package cascade

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// cascadeSource supplies key/value data to a Loader.
type cascadeSource interface {
	// Name labels the source in errors. ex: "YAML File: /home/me/.app/config.yaml".
	Name() string

	// ToMap returns the source's values as nested map[string]any objects whose leaves are nil, int, float64, bool, string, or slices of those ([]map[string]any for lists of
	// objects). It fails when the source cannot be read or parsed; a missing file yields an error wrapping fs.ErrNotExist.
	ToMap() (map[string]any, error)

	providence() Providence
}

// sourceMap adapts a Go map (defaults or flags) into a cascadeSource. Keys may use dot-notation to create nested objects and are lowercased.
type sourceMap struct {
	kind string // SourceDefault or SourceFlag.
	m    map[string]any
}

// sourceYAMLFile is one YAML file, read at load time. Empty and comment-only files contribute no values. Keys are kept as written, so map fields see the file's own spelling.
type sourceYAMLFile struct {
	path string // Expanded with ExpandPath.
}

// sourceEnv maps configuration keys to environment variables. Ex: {"server.port": "APP_PORT"}.
type sourceEnv struct {
	envToKey map[string]string
}

func (s *sourceMap) Name() string {
	if s.kind == SourceFlag {
		return "Flags"
	}
	return "Defaults"
}

func (s *sourceMap) providence() Providence {
	return Providence{SourceType: s.kind}
}

// ToMap expands dotted keys into nested objects. It returns an error on key conflicts (ex: both "a" and "a.b") or invalid value types.
func (s *sourceMap) ToMap() (map[string]any, error) {
	out := map[string]any{}
	for k, v := range s.m {
		if err := mergeIntoObject(out, strings.Split(k, "."), v, k); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// mergeIntoObject sets value at the path parts inside obj, lowercasing each segment and creating intermediate objects. A map[string]any value is deep-merged. fullKey is only used
// in errors.
func mergeIntoObject(obj map[string]any, parts []string, value any, fullKey string) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid key")
	}
	part := strings.ToLower(parts[0])

	if len(parts) > 1 {
		existing, exists := obj[part]
		if !exists {
			child := map[string]any{}
			obj[part] = child
			return mergeIntoObject(child, parts[1:], value, fullKey)
		}
		child, ok := existing.(map[string]any)
		if !ok {
			return fmt.Errorf("key conflict at '%s': '%s' is not an object", fullKey, part)
		}
		return mergeIntoObject(child, parts[1:], value, fullKey)
	}

	existing, exists := obj[part]
	if mv, ok := value.(map[string]any); ok {
		if !exists {
			existing = map[string]any{}
			obj[part] = existing
		}
		dest, isMap := existing.(map[string]any)
		if !isMap {
			return fmt.Errorf("key conflict: key '%s' was already set", fullKey)
		}
		for k, v := range mv {
			if err := mergeIntoObject(dest, strings.Split(k, "."), v, fullKey+"."+k); err != nil {
				return err
			}
		}
		return nil
	}

	if err := validateAllowedValue(value); err != nil {
		return fmt.Errorf("invalid value for key '%s': %w", fullKey, err)
	}
	if exists {
		return fmt.Errorf("key conflict: key '%s' was already set", fullKey)
	}
	obj[part] = value
	return nil
}

func validateAllowedValue(v any) error {
	switch vv := v.(type) {
	case nil, int, float64, bool, string:
		return nil
	case []int, []float64, []bool, []string:
		return nil
	case []map[string]any:
		for i, m := range vv {
			for mk, mv := range m {
				if err := validateAllowedValue(mv); err != nil {
					return fmt.Errorf("invalid nested value in object[%d] at key '%s': %w", i, mk, err)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("type %T is not allowed", v)
	}
}

func (s *sourceYAMLFile) Name() string {
	return fmt.Sprintf("YAML File: %s", s.path)
}

func (s *sourceYAMLFile) providence() Providence {
	return Providence{SourceType: SourceYAMLFile, SourceIdentifier: ExpandPath(s.path)}
}

func (s *sourceYAMLFile) ToMap() (map[string]any, error) {
	data, err := os.ReadFile(ExpandPath(s.path))
	if err != nil {
		return nil, fmt.Errorf("read yaml file: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		// Empty or comments only.
		return map[string]any{}, nil
	}
	normalized, err := normalizeYAMLValue(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := normalized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top-level YAML must be a mapping")
	}
	return obj, nil
}

// normalizeYAMLValue converts a value decoded by yaml.v3 into the types ToMap promises. A list holds a single element kind, except that ints and floats mix into []float64. An empty
// list is []string{}.
func normalizeYAMLValue(v any) (any, error) {
	switch vv := v.(type) {
	case nil, string, bool, int, float64:
		return vv, nil
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, e := range vv {
			ne, err := normalizeYAMLValue(e)
			if err != nil {
				return nil, fmt.Errorf("key '%s': %w", k, err)
			}
			out[k] = ne
		}
		return out, nil
	case map[any]any:
		return nil, fmt.Errorf("mapping keys must be strings")
	case []any:
		return normalizeYAMLList(vv)
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func normalizeYAMLList(list []any) (any, error) {
	if len(list) == 0 {
		return []string{}, nil
	}

	elems := make([]any, len(list))
	kinds := map[string]bool{}
	for i, e := range list {
		ne, err := normalizeYAMLValue(e)
		if err != nil {
			return nil, fmt.Errorf("list element %d: %w", i, err)
		}
		elems[i] = ne
		kinds[fmt.Sprintf("%T", ne)] = true
	}
	if kinds["int"] && kinds["float64"] {
		delete(kinds, "int")
		for i, e := range elems {
			if n, ok := e.(int); ok {
				elems[i] = float64(n)
			}
		}
	}
	if len(kinds) != 1 {
		return nil, fmt.Errorf("list contains mixed types")
	}

	switch elems[0].(type) {
	case string:
		return collect[string](elems), nil
	case bool:
		return collect[bool](elems), nil
	case int:
		return collect[int](elems), nil
	case float64:
		return collect[float64](elems), nil
	case map[string]any:
		return collect[map[string]any](elems), nil
	default:
		return nil, fmt.Errorf("unsupported list element type %T", elems[0])
	}
}

func collect[T any](elems []any) []T {
	out := make([]T, len(elems))
	for i, e := range elems {
		out[i] = e.(T)
	}
	return out
}

func (s *sourceEnv) Name() string {
	return "ENV"
}

func (s *sourceEnv) providence() Providence {
	return Providence{SourceType: SourceEnv}
}

// ToMap reads every mapped variable. Unset and empty variables set no key, so an exported-but-empty variable cannot clobber a value from a file.
func (s *sourceEnv) ToMap() (map[string]any, error) {
	out := map[string]any{}
	for mapKey, envVar := range s.envToKey {
		if envVar == "" {
			continue
		}
		val := os.Getenv(envVar)
		if val == "" {
			continue
		}
		if err := mergeIntoObject(out, strings.Split(mapKey, "."), val, mapKey); err != nil {
			return nil, err
		}
	}
	return out, nil
}
