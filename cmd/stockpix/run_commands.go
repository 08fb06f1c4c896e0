package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(configFlag)
			if err != nil {
				return err
			}
			defer rt.daemon.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := rt.daemon.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stockpix running (session %s); watching %s\n",
				rt.manager.SessionID(), rt.cfg.InboxDir())

			<-ctx.Done()
			rt.daemon.Stop()
			return nil
		},
	}
}

func newOnceCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Drain all pending batches and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(configFlag)
			if err != nil {
				return err
			}
			defer rt.store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := rt.manager.RunOnce(ctx); err != nil {
				return err
			}
			if err := rt.manager.LastError(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "completed with failures: %v\n", err)
			}
			return nil
		},
	}
}
