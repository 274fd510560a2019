package main

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-bridge/module"
	"github.com/wippyai/wasm-bridge/runtime"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the built-in in-process module",
	Long: `Run an in-process module that spawns workers. Each worker sleeps
through the host timer library and, if --url is set, fetches it through
the host fetch library before logging what it got.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().Int("workers", 0, "Workers to spawn (0 uses the host's parallelism)")
	demoCmd.Flags().Duration("delay", 200*time.Millisecond, "Sleep per worker")
	demoCmd.Flags().String("url", "", "URL each worker fetches")
	addHostFlags(demoCmd)
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, _ []string) error {
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

	rt, err := runtime.New(runtime.Options{Config: cfg, Logger: log})
	if err != nil {
		return err
	}
	defer rt.Close()

	workers, _ := cmd.Flags().GetInt("workers")
	delay, _ := cmd.Flags().GetDuration("delay")
	url, _ := cmd.Flags().GetString("url")

	var finished, failed atomic.Int32
	work := func() error {
		root := rt.Main()
		n := workers
		if n <= 0 {
			n = root.AvailableParallelism()
		}
		root.Log(fmt.Sprintf("spawning %d workers", n))
		for i := 0; i < n; i++ {
			i := i
			if _, err := root.Spawn(func(w *module.Context) {
				if err := demoWorker(w, i, delay, url); err != nil {
					failed.Add(1)
					w.LogError(err.Error())
					return
				}
				finished.Add(1)
			}); err != nil {
				return err
			}
		}
		rt.Wait()
		return nil
	}
	stats := func() []stat {
		h := rt.Host().Stats()
		m := rt.Module().Stats()
		return []stat{
			{"workers", fmt.Sprintf("%d active, %d spawned, %d refused", h.ActiveWorkers, h.Spawned, h.Refused)},
			{"finished", fmt.Sprintf("%d ok, %d failed", finished.Load(), failed.Load())},
			{"operations", fmt.Sprintf("%d issued, %d completed, %d outstanding", m.Completion.Issued, m.Completion.Completed, m.Completion.Outstanding)},
			{"heap", strconv.FormatUint(m.HeapInUse, 10) + " bytes in use"},
			{"memory", strconv.FormatUint(uint64(m.MemoryPages), 10) + " pages"},
		}
	}

	if tui {
		return runStatus("demo", stats, work)
	}
	if err := work(); err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), stats())
	return nil
}

func demoWorker(w *module.Context, i int, delay time.Duration, url string) error {
	ctx := context.Background()
	if err := w.Sleep(ctx, delay); err != nil {
		return err
	}
	if url == "" {
		w.Log(fmt.Sprintf("worker %d slept %s", i, delay))
		return nil
	}
	body, status, err := w.Fetch(ctx, url)
	if err != nil {
		return err
	}
	w.Log(fmt.Sprintf("worker %d fetched %s: status %d, %d bytes", i, url, status, len(body)))
	return nil
}
