package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"stockpix/internal/config"
	"stockpix/internal/logging"
	"stockpix/internal/registry"
)

const (
	ansiReset = "\x1b[0m"
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
)

func newStatusCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registry totals and pending batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(configFlag)
			if err != nil {
				return err
			}
			store, err := registry.Open(cfg)
			if err != nil {
				return fmt.Errorf("open registry: %w", err)
			}
			defer store.Close()

			stats, err := store.CollectStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("collect registry stats: %w", err)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, "Registry")
			statuses := registry.AllStatuses()
			rows := make([][]string, 0, len(statuses)+1)
			for _, status := range statuses {
				rows = append(rows, []string{string(status), logging.FormatCount(stats.ByStatus[status])})
			}
			rows = append(rows, []string{"total", logging.FormatCount(stats.Total)})
			fmt.Fprintln(out, renderTable([]string{"Status", "Images"}, rows, 1))

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Stage areas")
			areaRows, err := stageAreaRows(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderTable([]string{"Area", "Batches"}, areaRows, 1))

			fmt.Fprintln(out)
			if lockHeld(cfg) {
				fmt.Fprintln(out, colorLine("daemon: running", ansiGreen, colorize))
			} else {
				fmt.Fprintln(out, colorLine("daemon: not running", ansiRed, colorize))
			}
			return nil
		},
	}
}

func stageAreaRows(cfg *config.Config) ([][]string, error) {
	areas := []struct {
		label string
		dir   string
	}{
		{"inbox", cfg.InboxDir()},
		{"fetched", cfg.FetchedDir()},
		{"classified", cfg.ClassifiedDir()},
		{"validated", cfg.ValidatedDir()},
		{"archive", cfg.ArchiveDir()},
		{"raw", cfg.RawDir()},
	}
	rows := make([][]string, 0, len(areas))
	for _, area := range areas {
		count, err := countBatches(area.dir)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []string{area.label, logging.FormatCount(count)})
	}
	return rows, nil
}

func countBatches(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".csv") && !strings.HasSuffix(name, ".tmp") {
			count++
		}
	}
	return count, nil
}

// lockHeld reports whether a daemon currently owns the instance lock. The
// check is advisory; it races with daemon startup but is good enough for a
// status line.
func lockHeld(cfg *config.Config) bool {
	path := filepath.Join(cfg.Paths.LogDir, "stockpix.lock")
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return !tryFlock(path)
}

func colorLine(line, color string, colorize bool) string {
	if !colorize {
		return line
	}
	return color + line + ansiReset
}
