// Package daemonrun assembles the threadwatch runtime from configuration and
// drives cycles for the CLI, either once under the cycle lock or repeatedly
// until the process is signalled.
package daemonrun
