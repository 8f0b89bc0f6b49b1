package cascade

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
)

// Source types recorded in a Providence.
const (
	SourceDefault  = "default"
	SourceYAMLFile = "yaml_file"
	SourceEnv      = "env"
	SourceFlag     = "flag"
)

// Providence names the source a value came from.
type Providence struct {
	SourceType       string // One of the Source* constants.
	SourceIdentifier string // ex: "/home/me/.app/config.yaml". "" for sources without one (defaults, env, flags).
}

func (p Providence) IsSet() bool {
	return p.SourceType != ""
}

func (p Providence) Default() bool {
	return p.SourceType == SourceDefault
}

// LoadReport describes where the values of a load came from.
type LoadReport struct {
	Sources []Providence          // Sources that were read, low to high priority. Missing and unreadable files are absent.
	Fields  map[string]Providence // Lowercase dot-path of every assigned scalar, slice, and map field -> the last source that set it.
}

// Field returns the source of key's value, or the zero Providence if no source set it.
func (r LoadReport) Field(key string) Providence {
	return r.Fields[strings.ToLower(key)]
}

// Loader is a prioritized list of configuration sources. The zero value is ready to use.
type Loader struct {
	sources       []cascadeSource // Low to high priority.
	rejectUnknown bool
}

// New returns an empty Loader. It is equivalent to &Loader{} and exists for chaining.
func New() *Loader {
	return &Loader{}
}

// RejectUnknownKeys makes loading fail when a source supplies a key that matches no field.
func (c *Loader) RejectUnknownKeys() *Loader {
	c.rejectUnknown = true
	return c
}

// WithDefaults registers m as a source of default values. Keys may use dot-notation; values must be nil, int, float64, bool, string, or slices of those. A nil map contributes no
// values.
func (c *Loader) WithDefaults(m map[string]any) *Loader {
	c.sources = append(c.sources, &sourceMap{kind: SourceDefault, m: m})
	return c
}

// WithFlags registers m, the values given on a command line, with the same key and value rules as WithDefaults. Callers include only flags that were set.
func (c *Loader) WithFlags(m map[string]any) *Loader {
	c.sources = append(c.sources, &sourceMap{kind: SourceFlag, m: m})
	return c
}

// WithYAMLFile registers the YAML file at path (expanded with ExpandPath). The file is read when loading; a missing file is skipped then.
func (c *Loader) WithYAMLFile(path string) *Loader {
	c.sources = append(c.sources, &sourceYAMLFile{path: path})
	return c
}

// WithNearestYAMLFile registers the first readable, non-empty file named fileName found in start or one of its ancestors. start defaults to the working directory; a file path means
// its directory. fileName must be relative (ex: ".app/config.yaml"); it panics otherwise. If no file is found the Loader is unchanged.
func (c *Loader) WithNearestYAMLFile(fileName string, start string) *Loader {
	if path := nearestFile(fileName, start); path != "" {
		c.sources = append(c.sources, &sourceYAMLFile{path: path})
	}
	return c
}

// WithEnv registers environment variables as a source. m maps a configuration key (dots denote nesting) to a variable name. Values are strings and are coerced on assignment.
func (c *Loader) WithEnv(m map[string]string) *Loader {
	c.sources = append(c.sources, &sourceEnv{envToKey: m})
	return c
}

func nearestFile(fileName string, start string) string {
	if filepath.IsAbs(fileName) {
		panic("fileName shouldn't be absolute")
	}
	if start == "" {
		if wd, err := os.Getwd(); err == nil {
			start = wd
		}
	}
	if start == "" {
		return ""
	}
	if fi, err := os.Stat(start); err == nil && !fi.IsDir() {
		start = filepath.Dir(start)
	}

	for dir := start; ; {
		candidate := filepath.Join(dir, fileName)
		if data, err := os.ReadFile(candidate); err == nil && strings.TrimSpace(string(data)) != "" {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// StrictlyLoad is StrictlyLoadWithReport without the report.
func (c *Loader) StrictlyLoad(dest any) error {
	_, err := c.StrictlyLoadWithReport(dest)
	return err
}

// StrictlyLoadWithReport applies c's sources to dest, a non-nil pointer to a struct, from low to high priority. It fails fast: the first source that cannot be parsed or that supplies
// a value that cannot be coerced stops the load. Missing and unreadable sources are skipped. Required fields are checked after every source has been applied.
func (c *Loader) StrictlyLoadWithReport(dest any) (LoadReport, error) {
	destVal := reflect.ValueOf(dest)
	if dest == nil || destVal.Kind() != reflect.Ptr || destVal.IsNil() {
		return LoadReport{}, fmt.Errorf("dest must be a non-nil pointer to struct")
	}
	structVal := destVal.Elem()
	if structVal.Kind() != reflect.Struct {
		return LoadReport{}, fmt.Errorf("dest must be a pointer to struct, got %s", structVal.Kind())
	}

	l := &load{rejectUnknown: c.rejectUnknown, report: LoadReport{Fields: map[string]Providence{}}}
	for _, src := range c.sources {
		m, err := src.ToMap()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				continue
			}
			return LoadReport{}, fmt.Errorf("%s: %w", src.Name(), err)
		}
		l.prov = src.providence()
		l.report.Sources = append(l.report.Sources, l.prov)
		if err := l.applyMapToStruct(structVal, m, ""); err != nil {
			return LoadReport{}, fmt.Errorf("%s: %w", src.Name(), err)
		}
	}

	if err := validateRequiredFields(structVal, "", l.report.Fields); err != nil {
		return LoadReport{}, err
	}
	return l.report, nil
}

// load is the state of one StrictlyLoadWithReport call.
type load struct {
	rejectUnknown bool
	prov          Providence // Source being applied.
	report        LoadReport
}

func (l *load) assigned(path string) {
	l.report.Fields[path] = l.prov
}

// applyMapToStruct writes m into structVal. basePath is the dot-path of structVal, used for errors and the report. Nil values leave their field unchanged.
func (l *load) applyMapToStruct(structVal reflect.Value, m map[string]any, basePath string) error {
	structType := structVal.Type()

	fieldIndex := map[string]int{}
	for i := 0; i < structType.NumField(); i++ {
		f := structType.Field(i)
		if !structVal.Field(i).CanSet() {
			continue
		}
		key := computeFieldKey(f)
		if key == "-" || key == "" {
			continue
		}
		if prev, exists := fieldIndex[key]; exists {
			return fmt.Errorf("struct contains case-insensitive field key collision for %q: %s and %s", key, structType.Field(prev).Name, f.Name)
		}
		fieldIndex[key] = i
	}

	for key, raw := range m {
		keyLower := strings.ToLower(key)
		childPath := keyLower
		if basePath != "" {
			childPath = basePath + "." + keyLower
		}

		idx, ok := fieldIndex[keyLower]
		if !ok {
			if l.rejectUnknown {
				return fmt.Errorf("unknown key %q", childPath)
			}
			continue
		}
		if raw == nil {
			continue
		}
		if err := l.setFieldValue(structVal.Field(idx), raw, childPath); err != nil {
			return err
		}
	}
	return nil
}

// setFieldValue assigns raw to fVal, allocating pointers and coercing scalars. Structs take a map[string]any; maps with string keys take a map[string]any of scalars; slices take
// any slice whose elements coerce to the element type (objects for slices of structs).
func (l *load) setFieldValue(fVal reflect.Value, raw any, path string) error {
	if fVal.Kind() == reflect.Ptr {
		if fVal.IsNil() {
			fVal.Set(reflect.New(fVal.Type().Elem()))
		}
		return l.setFieldValue(fVal.Elem(), raw, path)
	}

	switch fVal.Kind() {
	case reflect.Struct:
		obj, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object for struct field, got %T", path, raw)
		}
		return l.applyMapToStruct(fVal, obj, path)

	case reflect.Map:
		if fVal.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%s: unsupported map key type %s", path, fVal.Type().Key())
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object for map field, got %T", path, raw)
		}
		if fVal.IsNil() {
			fVal.Set(reflect.MakeMapWithSize(fVal.Type(), len(obj)))
		}
		for k, v := range obj {
			elem := reflect.New(fVal.Type().Elem()).Elem()
			if err := setScalar(elem, v, path+"."+k); err != nil {
				return err
			}
			fVal.SetMapIndex(reflect.ValueOf(k).Convert(fVal.Type().Key()), elem)
		}
		l.assigned(path)
		return nil

	case reflect.Slice:
		rv := reflect.ValueOf(raw)
		if rv.Kind() != reflect.Slice {
			return fmt.Errorf("%s: cannot coerce %T to %s", path, raw, fVal.Type())
		}
		slice := reflect.MakeSlice(fVal.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elemPath := fmt.Sprintf("%s[%d]", path, i)
			elem := rv.Index(i).Interface()
			if slice.Index(i).Kind() == reflect.Struct {
				obj, ok := elem.(map[string]any)
				if !ok {
					return fmt.Errorf("%s: expected object, got %T", elemPath, elem)
				}
				if err := l.applyMapToStruct(slice.Index(i), obj, elemPath); err != nil {
					return err
				}
				continue
			}
			if err := setScalar(slice.Index(i), elem, elemPath); err != nil {
				return err
			}
		}
		fVal.Set(slice)
		l.assigned(path)
		return nil

	default:
		if err := setScalar(fVal, raw, path); err != nil {
			return err
		}
		l.assigned(path)
		return nil
	}
}

func setScalar(v reflect.Value, raw any, path string) error {
	coerced, err := coerceScalar(raw, v.Kind(), path)
	if err != nil {
		return err
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(coerced.(string))
	case reflect.Bool:
		v.SetBool(coerced.(bool))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v.SetInt(coerced.(int64))
	case reflect.Float32, reflect.Float64:
		v.SetFloat(coerced.(float64))
	}
	return nil
}

// coerceScalar converts raw to the Go value for a field of targetKind: string for String, bool for Bool, int64 for the Int kinds, and float64 for the Float kinds. Strings are
// parsed (after trimming space) and numbers and bools are formatted; floats truncate toward zero for ints. Errors include path (ex: "server.ports[2]").
func coerceScalar(raw any, targetKind reflect.Kind, path string) (any, error) {
	switch targetKind {
	case reflect.String:
		switch v := raw.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(v), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
		return nil, fmt.Errorf("%s: cannot coerce %T to string", path, raw)
	case reflect.Bool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("%s: cannot parse bool from %q", path, v)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("%s: cannot coerce %T to bool", path, raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case float64:
			return int64(v), nil
		case string:
			parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: cannot parse int from %q", path, v)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("%s: cannot coerce %T to int", path, raw)
	case reflect.Float32, reflect.Float64:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("%s: cannot parse float from %q", path, v)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("%s: cannot coerce %T to float", path, raw)
	default:
		return nil, fmt.Errorf("%s: unsupported field kind %s", path, targetKind)
	}
}

func computeFieldKey(f reflect.StructField) string {
	if name := tagName(f.Tag.Get("cascade")); name != "" {
		return strings.ToLower(name)
	}
	// yaml:"-" only drops the yaml name; the field is still matched by its Go name.
	if name := tagName(f.Tag.Get("yaml")); name != "" && name != "-" {
		return strings.ToLower(name)
	}
	return strings.ToLower(f.Name)
}

func tagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return strings.TrimSpace(name)
}

func requiredFromCascadeTag(f reflect.StructField) bool {
	_, opts, _ := strings.Cut(f.Tag.Get("cascade"), ",")
	for _, opt := range strings.Split(opts, ",") {
		if strings.TrimSpace(opt) == "required" {
			return true
		}
	}
	return false
}

// validateRequiredFields returns an error naming the first field tagged cascade:",required" whose path is not in assigned. It recurses into structs, non-nil struct pointers, and
// slices of structs (ex: "items[0].name").
func validateRequiredFields(structVal reflect.Value, basePath string, assigned map[string]Providence) error {
	structType := structVal.Type()
	for i := 0; i < structType.NumField(); i++ {
		f := structType.Field(i)
		fv := structVal.Field(i)
		key := computeFieldKey(f)
		if key == "-" || key == "" || !f.IsExported() {
			continue
		}
		path := key
		if basePath != "" {
			path = basePath + "." + key
		}

		if requiredFromCascadeTag(f) {
			if _, ok := assigned[path]; !ok {
				return fmt.Errorf("missing required key: %s", path)
			}
		}

		switch fv.Kind() {
		case reflect.Ptr:
			if !fv.IsNil() && fv.Elem().Kind() == reflect.Struct {
				if err := validateRequiredFields(fv.Elem(), path, assigned); err != nil {
					return err
				}
			}
		case reflect.Struct:
			if err := validateRequiredFields(fv, path, assigned); err != nil {
				return err
			}
		case reflect.Slice:
			if fv.Type().Elem().Kind() == reflect.Struct {
				for j := 0; j < fv.Len(); j++ {
					if err := validateRequiredFields(fv.Index(j), fmt.Sprintf("%s[%d]", path, j), assigned); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
