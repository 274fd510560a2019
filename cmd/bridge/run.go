package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-bridge/runtime"
)

var runCmd = &cobra.Command{
	Use:   "run <file.wasm>",
	Short: "Run a compiled guest module",
	Long: `Run a WebAssembly guest built for the bridge protocol.

The guest must import env.memory as shared memory and kwasm.message_to_host.
Its entry export is called on the main instance; workers it spawns run as
separate instances of the same module sharing that memory.`,
	Args: cobra.ExactArgs(1),
	RunE: runGuest,
}

func init() {
	runCmd.Flags().String("entry", "_start", "Export to call on the main instance")
	runCmd.Flags().Duration("timeout", 0, "Abort after this long (0 waits forever)")
	addHostFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func runGuest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tui := interactive(cmd)
	log, err := newLogger(cmd, tui)
	if err != nil {
		return err
	}
	defer log.Sync()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read guest: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	g, err := runtime.LoadGuest(ctx, data, runtime.Options{Config: cfg, Logger: log})
	if err != nil {
		return err
	}
	defer g.Close(context.Background())

	entry, _ := cmd.Flags().GetString("entry")
	work := func() error {
		if _, err := g.Run(ctx, entry); err != nil {
			return err
		}
		g.Wait()
		return nil
	}
	stats := func() []stat {
		s := g.Host().Stats()
		return []stat{
			{"instances", strconv.Itoa(g.Engine().Instances())},
			{"workers", fmt.Sprintf("%d active, %d spawned, %d refused", s.ActiveWorkers, s.Spawned, s.Refused)},
			{"completions", fmt.Sprintf("%d delivered, %d dropped", s.Delivered, s.Dropped)},
			{"libraries", strconv.Itoa(s.Libraries)},
		}
	}

	if tui {
		return runStatus(args[0], stats, work)
	}
	if err := work(); err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), stats())
	return nil
}
