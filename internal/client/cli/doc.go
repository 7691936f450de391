// Package cli implements the marksync command line: a cobra command tree
// over App, the composition root that opens the local store and wires the
// sync engine.
package cli
