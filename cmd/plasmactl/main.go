// plasmactl is a minimal interactive driver for the object lifecycle
// core: just enough of a surrounding service to exercise the lifecycle
// manager end-to-end from a terminal. No IPC framing, fd passing, or
// client wire protocol - each line typed is parsed as a subcommand and
// dispatched in-process.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/urfave/cli"

	"github.com/plasmacore/plasmacore/cmn"
	"github.com/plasmacore/plasmacore/debugdb"
	"github.com/plasmacore/plasmacore/lifecycle"
	"github.com/plasmacore/plasmacore/memsys"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (cmn.Config)")
	flag.Parse()

	cfg, err := cmn.LoadConfig(*configPath)
	if err != nil {
		glog.Fatalf("plasmactl: %v", err)
	}
	rt := newRuntime(cfg)
	defer rt.idx.Close()

	app := cli.NewApp()
	app.Name = "plasmactl"
	app.Usage = "drive an in-process object lifecycle core"
	app.Commands = objectCommands(func() *runtime { return rt })

	if flag.NArg() > 0 {
		// non-interactive: run the single command given on argv and exit
		if err := app.Run(append([]string{"plasmactl"}, flag.Args()...)); err != nil {
			glog.Errorf("plasmactl: %v", err)
			os.Exit(1)
		}
		return
	}
	runREPL(app)
}

// runREPL reads one subcommand per line from stdin and dispatches each
// through the same cli.App and the same runtime, so the Manager built
// in main persists across commands within this process - the only kind
// of "session" the core's no-persistence-across-restart design allows.
func runREPL(app *cli.App) {
	fmt.Println("plasmactl: interactive mode (type 'exit' to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("plasmactl> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		args := append([]string{"plasmactl"}, strings.Fields(line)...)
		if err := app.Run(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// runtime bundles one LifecycleManager with its allocator and debug
// index - everything a single plasmactl process needs to exercise the
// core end-to-end.
type runtime struct {
	mgr *lifecycle.Manager
	idx *debugdb.Index
}

func newRuntime(cfg *cmn.Config) *runtime {
	alloc := memsys.NewAllocator(cfg.Memsys.ArenaSize, cfg.Memsys.FallbackDir, cfg.Memsys.FallbackLimit)
	idx, err := debugdb.New()
	if err != nil {
		glog.Fatalf("plasmactl: failed to open debug index: %v", err)
	}
	rt := &runtime{idx: idx}
	rt.mgr = lifecycle.NewManager(alloc, rt.onDelete, cfg)
	return rt
}

func (rt *runtime) onDelete(id cmn.ObjectID) {
	glog.Infof("plasmactl: deleted %s", id)
}
