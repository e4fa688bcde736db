// Package main hosts the threadwatch CLI entrypoint and command graph.
//
// The Cobra command tree runs scrape cycles once or in a loop, inspects stored
// posts and the outbound request log, and scaffolds configuration. Config is
// resolved lazily so commands such as `config init` work before a config file
// exists.
package main
