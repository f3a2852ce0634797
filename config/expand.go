package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

const dollarSentinel = "\x00PAYGUARD_CONFIG_DOLLAR\x00"

// ExpandEnvStrict expands environment variables in s.
//
// Semantics:
//   - `$VAR` and `${VAR}` are expanded via os.ExpandEnv.
//   - If `${VAR}` is present but VAR is missing from the environment, it errors.
//   - `$$` emits a literal `$` (escape hatch).
func ExpandEnvStrict(s string) (string, error) {
	if missing := missingEnvVars(s); len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingEnvVars, strings.Join(missing, ", "))
	}
	return expandString(s), nil
}

// ExpandStrings expands environment references in every settable string
// reachable from target, which must be a non-nil pointer to a struct.
// All fields are scanned before any is rewritten, so one error reports
// every missing variable at once.
func ExpandStrings(target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrNotStructPointer
	}
	root := rv.Elem()

	missing := make(map[string]struct{})
	walkStrings(root, func(s string) string {
		for _, key := range missingEnvVars(s) {
			missing[key] = struct{}{}
		}
		return s
	})
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("%w: %s", ErrMissingEnvVars, strings.Join(keys, ", "))
	}

	walkStrings(root, expandString)
	return nil
}

// missingEnvVars returns the sorted `${VAR}` names in s that are unset.
// Plain `$VAR` references stay lenient, matching os.ExpandEnv.
func missingEnvVars(s string) []string {
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	seen := make(map[string]struct{})
	for _, match := range envVarPattern.FindAllStringSubmatch(s, -1) {
		key := match[1]
		if _, ok := os.LookupEnv(key); !ok {
			seen[key] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// expandString expands $VAR and ${VAR} in s, turning $$ into a literal $.
func expandString(s string) string {
	s = strings.ReplaceAll(s, "$$", dollarSentinel)
	s = os.ExpandEnv(s)
	return strings.ReplaceAll(s, dollarSentinel, "$")
}

// walkStrings applies fn to every settable string reachable from v,
// descending through pointers, structs, slices, arrays and maps with
// string values.
func walkStrings(v reflect.Value, fn func(string) string) {
	switch v.Kind() {
	case reflect.String:
		if v.CanSet() {
			v.SetString(fn(v.String()))
		}
	case reflect.Pointer:
		if !v.IsNil() {
			walkStrings(v.Elem(), fn)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			walkStrings(v.Field(i), fn)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			walkStrings(v.Index(i), fn)
		}
	case reflect.Map:
		if v.Type().Elem().Kind() != reflect.String {
			return
		}
		for _, key := range v.MapKeys() {
			expanded := fn(v.MapIndex(key).String())
			v.SetMapIndex(key, reflect.ValueOf(expanded).Convert(v.Type().Elem()))
		}
	}
}
