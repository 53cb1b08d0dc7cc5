// Command assetpipe is a one-shot CLI over a project's asset pipeline,
// for use in build scripts and CI where a long-running assetpiped
// daemon isn't wanted.
//
// Usage:
//
//	assetpipe refresh [path]     Walk a project (or one path) and import changed sources
//	assetpipe import <source>    Import a single source file
//	assetpipe stats [path]       Print job pool statistics
//	assetpipe gc <path>          Print the stale-artifact count (always 0; nothing is scanned or removed)
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgekit/assetpipe/pkg/assetdb"
	"github.com/forgekit/assetpipe/pkg/pipeline"
	"github.com/forgekit/assetpipe/pkg/platform"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "refresh":
		err = cmdRefresh(args)
	case "import":
		err = cmdImport(args)
	case "stats":
		err = cmdStats(args)
	case "gc":
		err = cmdGC(args)
	case "version", "-v", "--version":
		fmt.Printf("assetpipe version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`assetpipe - one-shot asset pipeline CLI

Usage:
  assetpipe refresh [path]     Walk a project and import changed sources (default: .)
  assetpipe import <source>    Import a single source file
  assetpipe stats [path]       Print job pool statistics
  assetpipe gc <path>          Print the stale-artifact count (always 0; no scan, no removal)
  assetpipe version            Show version information`)
}

func openPipeline(root string) (*pipeline.Pipeline, error) {
	return pipeline.Open(pipeline.Config{
		ProjectRoot: root,
		Platform:    platform.Current(),
	}, nopLogger{})
}

func cmdRefresh(args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	fs.Parse(args)

	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	pipe, err := openPipeline(absRoot)
	if err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}
	defer pipe.Close()

	if err := pipe.AddRoot(absRoot); err != nil {
		return fmt.Errorf("add root: %w", err)
	}
	fmt.Printf("refreshed %s\n", absRoot)
	return nil
}

func cmdImport(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: assetpipe import <source>")
	}
	source, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	pipe, err := openPipeline(filepath.Dir(source))
	if err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}
	defer pipe.Close()

	pipe.Refresh(source)
	fmt.Printf("imported %s\n", source)
	return nil
}

func cmdStats(args []string) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	pipe, err := openPipeline(absRoot)
	if err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}
	defer pipe.Close()

	fmt.Printf("project:       %s\n", absRoot)
	fmt.Printf("pool workers:  %d\n", pipe.PoolWorkers())
	fmt.Printf("pool running:  %v\n", pipe.PoolRunning())
	fmt.Printf("queued jobs:   %d\n", pipe.QueuedJobs())
	return nil
}

func cmdGC(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: assetpipe gc <path>")
	}
	absRoot, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	pipe, err := openPipeline(absRoot)
	if err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}
	defer pipe.Close()

	stale := 0
	err = pipe.DB().WithRead(func(tx *assetdb.ReadTxn) error {
		// AssetDB releases an artifact's blob when its last reference is
		// removed, so this reads nothing and reports a stale count of 0;
		// no table is walked and nothing is deleted.
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("stale artifacts: %d (AssetDB releases zero-refcount artifacts eagerly on delete)\n", stale)
	return nil
}

type nopLogger struct{}

func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
