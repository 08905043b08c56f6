package cli

import (
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"jordanella.com/paws-farm-go/internal/config"
)

const recentErrors = 10

func buildAccountsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage stored accounts",
	}
	cmd.AddCommand(buildImportCommand(opts))
	cmd.AddCommand(buildListCommand(opts))
	cmd.AddCommand(buildLoginCommand(opts))
	return cmd
}

func buildImportCommand(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import accounts from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := config.LoadAccountsFile(file)
			if err != nil {
				return err
			}

			_, db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			var created, updated int
			for _, e := range entries {
				_, isNew, err := db.UpsertAccount(e.Phone, e.AreaCode, e.LoginParam)
				if err != nil {
					return fmt.Errorf("failed to import %s: %w", e.Phone, err)
				}
				if isNew {
					created++
				} else {
					updated++
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d accounts (%d new, %d updated)\n", len(entries), created, updated)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with an accounts list")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func buildListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.ListAccounts()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPHONE\tBALANCE\tPROFIT/H\tFRIENDS\tACTIVE\tBANNED\tLOGIN")
			for _, a := range rows {
				fmt.Fprintf(w, "%d\t%s%s\t%d\t%d\t%d\t%t\t%t\t%t\n",
					a.ID, a.AreaCode, a.Phone, a.Balance, a.ProfitPerHour, a.FriendsCount,
					a.IsActive, a.IsBanned, a.LoginParam != "")
			}
			return w.Flush()
		},
	}
}

func buildLoginCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login ID PARAM",
		Short: "Store a fresh login parameter for an account",
		Long: `Stores a login parameter captured from the Telegram web app. A running
farm waiting on this account picks it up on its next poll.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid account id %q", args[0])
			}

			_, db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if _, err := db.GetAccountByID(id); err != nil {
				return fmt.Errorf("account %d: %w", id, err)
			}
			if err := db.SaveLoginInfo(id, args[1], "cli"); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved login for account %d\n", id)
			return nil
		},
	}
}

func buildStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored record counts and pending login requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			version, err := db.GetVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Database: %s (schema v%d)\n", settings.Database.Path, version)

			stats, err := db.GetStats()
			if err != nil {
				return err
			}
			tables := make([]string, 0, len(stats))
			for t := range stats {
				tables = append(tables, t)
			}
			sort.Strings(tables)
			for _, t := range tables {
				fmt.Fprintf(out, "  %-16s %d\n", t, stats[t])
			}

			pending, err := db.ListPendingLoginRequests()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Pending login requests: %d\n", len(pending))
			for _, p := range pending {
				fmt.Fprintf(out, "  account %d (%s) attempt %d since %s\n",
					p.AccountID, p.Phone, p.Attempt, p.RequestedAt.Format("2006-01-02 15:04:05"))
			}

			recent, err := db.GetRecentErrors(recentErrors)
			if err != nil {
				return err
			}
			if len(recent) > 0 {
				fmt.Fprintln(out, "Recent errors:")
			}
			for _, e := range recent {
				who := "-"
				if e.AccountID != nil {
					who = strconv.FormatInt(*e.AccountID, 10)
				}
				fmt.Fprintf(out, "  %s [%s] account %s %s: %s\n",
					e.OccurredAt.Format("2006-01-02 15:04:05"), e.ErrorSeverity, who, e.ErrorType, e.ErrorMessage)
			}
			return nil
		},
	}
}
