package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/splitclock/splitclock/internal/engine"
	"github.com/splitclock/splitclock/internal/recompute"
)

var (
	daemonInterval time.Duration
	daemonLookback time.Duration
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Periodically recompute flagged streams",
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 5*time.Minute, "Recompute interval")
	daemonCmd.Flags().DurationVar(&daemonLookback, "lookback", 24*time.Hour, "How far back each pass folds")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	lock := recompute.NewRunLock(filepath.Join(cfg.Paths.DataDir, "daemon.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !ok {
		if pid := lock.Owner(); pid != "" {
			return fmt.Errorf("another splitclock daemon is already running (pid %s)", pid)
		}
		return fmt.Errorf("another splitclock daemon is already running")
	}
	defer lock.Unlock()

	orch := recompute.New(st,
		engine.Params{AttentionWindowMS: cfg.Engine.AttentionWindowMS, SessionTimeoutMS: cfg.Engine.SessionTimeoutMS},
		engine.NewAppClasses(cfg.Apps.TerminalApps, cfg.Apps.BrowserApps))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printHeader("Recompute daemon")
	ticker := time.NewTicker(daemonInterval)
	defer ticker.Stop()

	pass := func() {
		now := time.Now().UTC()
		res, err := orch.Run(now.Add(-daemonLookback), now, nil)
		if err != nil {
			slog.Error("recompute pass failed", "error", err)
			return
		}
		if res.Streams > 0 {
			slog.Info("recompute pass", "streams", res.Streams, "warnings", len(res.Warnings))
		}
	}

	pass()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("Daemon stopped.")
			return nil
		case <-ticker.C:
			pass()
		}
	}
}
