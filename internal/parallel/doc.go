// Package parallel runs block-compression jobs across a fixed set of
// worker goroutines.
package parallel
