package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/rent-ledger/app"
	"github.com/warp/rent-ledger/billing"
	"github.com/warp/rent-ledger/config"
	"github.com/warp/rent-ledger/export"
	"github.com/warp/rent-ledger/logging"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rentctl",
		Short:         "Rent ledger command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(roomsCmd(), settleCmd(), historyCmd(), exportCmd())
	return root
}

// withApp opens the configured ledger for the duration of fn. Remote sync
// stays off: no session is established from the command line.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Remote.Backend = config.RemoteNone
	cfg.AMQP.URL = ""

	logger, err := logging.New(cfg.LogLevel, "console", "rentctl")
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	a, err := app.New(cmd.Context(), cfg, logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// =============================================================================
// ROOMS
// =============================================================================

func roomsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List and add rooms",
	}
	cmd.AddCommand(roomsListCmd(), roomsAddCmd())
	return cmd
}

func roomsListCmd() *cobra.Command {
	var (
		filter      billing.Filter
		payDay      int
		unpaidFirst bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rooms with the amount due",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.PayDay = billing.Day(payDay)
			return withApp(cmd, func(a *app.App) error {
				rooms := filter.Apply(a.Book.Present())
				billing.SortRooms(rooms, unpaidFirst)
				printRooms(cmd, rooms, a.Book.Defaults())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "Room number contains")
	cmd.Flags().StringVar(&filter.Building, "building", "", "Building prefix")
	cmd.Flags().IntVar(&payDay, "pay-day", 0, "Pay day (1-31)")
	cmd.Flags().BoolVar(&unpaidFirst, "unpaid-first", false, "List unpaid rooms first")
	return cmd
}

func roomsAddCmd() *cobra.Command {
	var (
		rent, deposit string
		payDay        int
	)
	cmd := &cobra.Command{
		Use:   "add <roomNo>...",
		Short: "Add rooms, skipping numbers that already exist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			drafts := make([]billing.RoomDraft, len(args))
			for i, no := range args {
				drafts[i] = billing.RoomDraft{
					RoomNo:  no,
					Rent:    billing.Numeric(rent),
					Deposit: billing.Numeric(deposit),
					PayDay:  billing.Day(payDay),
				}
			}
			return withApp(cmd, func(a *app.App) error {
				added, err := a.Book.AddRooms(drafts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %d room(s).\n", len(added))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rent, "rent", "", "Monthly rent (default from DEFAULT_RENT)")
	cmd.Flags().StringVar(&deposit, "deposit", "", "Deposit")
	cmd.Flags().IntVar(&payDay, "pay-day", 1, "Pay day (1-31)")
	return cmd
}

// =============================================================================
// SETTLE
// =============================================================================

func settleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle <all|payDay>",
		Short: "Start a new month for all rooms or one pay-day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			if target != "all" {
				if _, err := billing.ParsePayDay(target); err != nil {
					return err
				}
			}
			return withApp(cmd, func(a *app.App) error {
				_, settled, err := a.Book.SettleRooms(target)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Settled %d room(s).\n", len(settled))
				return nil
			})
		},
	}
}

// =============================================================================
// HISTORY
// =============================================================================

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the commit journal (sqlite store)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				entries, err := a.Journal(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No commits recorded yet.")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SEQ\tCOMMITTED AT\tORIGIN\tROOMS\tDESCRIPTION")
				for _, e := range entries {
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", e.Seq, e.CommittedAt.Format("2006-01-02 15:04:05"), e.Origin, e.RoomCount, e.Description)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries")
	return cmd
}

// =============================================================================
// EXPORT
// =============================================================================

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export rooms or bills as .xlsx",
	}

	var roomsOut string
	rooms := &cobra.Command{
		Use:   "rooms",
		Short: "Export every room with the amount due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				rooms := a.Book.Present()
				billing.SortRooms(rooms, false)
				data, err := export.Rooms(rooms, a.Book.Defaults())
				if err != nil {
					return err
				}
				return writeOutput(cmd, roomsOut, data)
			})
		},
	}
	rooms.Flags().StringVarP(&roomsOut, "output", "o", "rooms.xlsx", "Output file")

	var billsOut string
	bills := &cobra.Command{
		Use:   "bills <roomNo>",
		Short: "Export a room's settled bills",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				present := a.Book.Present()
				i := billing.FindRoomNo(present, args[0])
				if i < 0 {
					return fmt.Errorf("%w: %s", billing.ErrRoomNotFound, args[0])
				}
				data, err := export.Bills(present[i])
				if err != nil {
					return err
				}
				out := billsOut
				if out == "" {
					out = fmt.Sprintf("bills-%s.xlsx", args[0])
				}
				return writeOutput(cmd, out, data)
			})
		},
	}
	bills.Flags().StringVarP(&billsOut, "output", "o", "", "Output file (default bills-<roomNo>.xlsx)")

	cmd.AddCommand(rooms, bills)
	return cmd
}

// ===== HELPERS =====

func printRooms(cmd *cobra.Command, rooms []billing.Room, defaults billing.Defaults) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROOM\tTENANT\tPAY DAY\tPERIOD\tTOTAL\tSTATUS")
	for _, r := range rooms {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.RoomNo, r.TenantName, r.PayDay.Int(), r.Period(),
			billing.ComputeTotal(r, defaults).StringFixed(2), r.Status)
	}
	w.Flush()
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
