// Package driving defines the primary ports of the server core: the
// interfaces through which the edge layer and tooling invoke it.
package driving
