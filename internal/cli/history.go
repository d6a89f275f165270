package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyike/agenttrader/internal/service"
	"github.com/dyike/agenttrader/internal/storage"
	"github.com/dyike/agenttrader/pkg/sqlite"
)

func newHistoryCmd(o *options) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past runs and their reports",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), o, func(store *storage.Store) error {
				sessions, err := store.ListSessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderSessions(sessions))
				return nil
			})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")

	showCmd := &cobra.Command{
		Use:   "show SESSION_ID",
		Short: "Show the steps and final decision of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), o, func(store *storage.Store) error {
				sess, err := store.GetSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				steps, err := store.ListSteps(cmd.Context(), sess.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderRun(&service.RunDetail{Session: *sess, Steps: steps}))
				return nil
			})
		},
	}

	reportsCmd := &cobra.Command{
		Use:   "reports [TICKER]",
		Short: "List the markdown reports written by past runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			ticker := ""
			if len(args) == 1 {
				ticker = args[0]
			}
			files, err := service.ListReports(cfg.ResultsDir, ticker)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderReportFiles(files))
			return nil
		},
	}

	readCmd := &cobra.Command{
		Use:   "read PATH",
		Short: "Print a report file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			content, err := service.ReadReport(cfg.ResultsDir, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(content))
			return nil
		},
	}

	historyCmd.AddCommand(listCmd, showCmd, reportsCmd, readCmd)
	return historyCmd
}

// withStore opens the run history database without building the LLM stack.
func withStore(ctx context.Context, o *options, fn func(*storage.Store) error) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := storage.NewStore(ctx, db)
	if err != nil {
		return err
	}
	return fn(store)
}
