// Package engine wires storage, the resolution cache, the capability policy
// and the access services from a config.Config. Both binaries build on it.
package engine
