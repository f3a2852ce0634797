// Package config loads gateway configuration from a YAML file with
// environment overrides.
//
// Load reads an optional file, lays PAYGUARD_-prefixed environment
// variables over it and returns a validated File. Keys nest with
// underscores, so PAYGUARD_SERVER_LISTEN_ADDRESS overrides
// server.listen_address. Environment beats file beats defaults.
//
// String values may reference environment variables:
//   - Strict form:  ${VAR} fails the load when VAR is unset
//   - Lenient form: $VAR expands to empty when unset
//   - Escape:       $$ emits a literal $
//
// Missing strict references are collected across the whole file and
// reported in one error (see ExpandStrings).
//
// The sections map onto the runtime packages: Observability builds an
// observe.Config, Resilience a resilience.Config and RateLimit a
// ratelimit.Config plus the counter store selection. Function-valued
// settings such as event hooks and custom key extractors cannot come
// from a file and are attached in code after Build.
package config
