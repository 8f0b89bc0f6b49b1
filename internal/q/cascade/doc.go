// Package cascade loads layered configuration into Go structs from multiple sources with predictable precedence, and reports which source set each value.
//
// A Loader holds sources registered from lowest to highest priority with the With* methods. StrictlyLoad (or StrictlyLoadWithReport) applies them in that order to a destination
// struct, later sources overwriting earlier ones.
//
// Sources
//   - Defaults and command-line flags from a map[string]any whose keys may use dot-notation to denote nesting.
//   - YAML files read at load time. WithYAMLFile registers a specific path; WithNearestYAMLFile searches upward from a starting directory for the first readable, non-empty file with
//     a given relative name.
//   - Environment variables mapped to configuration keys via WithEnv. Unset and empty variables are ignored.
//
// Keys and coercion
//
// Keys are dot-separated for nesting and matched to struct fields case-insensitively. A field's key is its cascade tag name, else its yaml tag name, else its name. Values are coerced
// when reasonable (strings to numbers and bools, numbers to strings, ints to floats). Pointer fields are allocated as needed. Map fields with string keys take a mapping whose keys
// are kept as written. Unknown keys are ignored unless RejectUnknownKeys was called.
//
// Errors
//
// Fields tagged cascade:",required" must be set by some source. A readable source that cannot be parsed, or that supplies a value that cannot be coerced, stops the load with an
// error naming the source. Missing or unreadable sources are skipped.
//
// Example
//
//	var cfg Config
//	report, err := New().
//	    WithDefaults(map[string]any{"server.port": 8080}).
//	    WithNearestYAMLFile(".app/config.yaml", "").
//	    WithEnv(map[string]string{"server.port": "APP_PORT"}).
//	    StrictlyLoadWithReport(&cfg)
//	fmt.Println(report.Field("server.port").SourceType) // ex: "env"
package cascade
