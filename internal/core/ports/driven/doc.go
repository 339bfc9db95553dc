// Package driven defines the secondary ports of the server core: the
// interfaces the core calls out through. Adapters under
// internal/adapters/driven implement them against concrete storage.
package driven
