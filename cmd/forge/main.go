// Command forge runs a single target across a workspace's project graph.
// Argument parsing beyond the workspace root and target name is out of
// scope; this binary exists to exercise internal/forge end to end, not to
// be a full CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jbadeau/forge-sub002/internal/exec"
	"github.com/jbadeau/forge-sub002/internal/forge"
	"github.com/jbadeau/forge-sub002/internal/logger"
	"github.com/jbadeau/forge-sub002/internal/taskgraph"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: forge <workspace-root> <target>")
		os.Exit(1)
	}
	workspaceRoot, target := os.Args[1], os.Args[2]

	log, err := logger.New(logger.Options{Level: "info", HumanReadable: true, Component: "forge"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	core := forge.NewCore(log)

	projectGraph, warnings, err := core.BuildProjectGraph(workspaceRoot)
	if err != nil {
		log.Error(err, "failed to build project graph")
		os.Exit(1)
	}
	for _, w := range warnings {
		log.Warn("inference warning", "plugin", w.Plugin, "path", w.Path, "error", w.Err)
	}

	taskGraph, err := core.BuildTaskGraph(projectGraph, target, taskgraph.All())
	if err != nil {
		log.Error(err, "failed to build task graph")
		os.Exit(1)
	}

	results, err := core.Execute(context.Background(), taskGraph, exec.LocalOptions{WorkspaceRoot: workspaceRoot})
	if err != nil {
		log.Error(err, "execution failed")
		os.Exit(1)
	}

	for _, res := range results.Results {
		log.Info("task finished", "task", res.TaskID, "status", string(res.Status), "exitCode", res.ExitCode)
	}

	os.Exit(results.ExitCode())
}
