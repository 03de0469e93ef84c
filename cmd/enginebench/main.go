// Package main implements the enginebench binary: it runs TPC-H and
// microbenchmark cases against one or more registered query engines.
package main

import (
	"context"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	_ "github.com/arkilian/enginebench/internal/engine/memory"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cmd := RootCmd()
	cmd.SetArgs(normalizeArgs(os.Args[1:]))
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
