// Package observe provides observability primitives for the gateway.
//
// It is a pure instrumentation library: no execution, no transport, no I/O
// beyond exporter setup. Consumers wrap upstream calls through Middleware
// and wire the recorders into resilience and admission hooks.
package observe
