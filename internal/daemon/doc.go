// Package daemon owns process-level coordination for threadwatch.
//
// Cycles are not safe to overlap, so every entry point that runs one holds a
// flock-based Lock on the data directory first. Loop repeats a cycle function
// on a fixed interval until its context is cancelled.
package daemon
