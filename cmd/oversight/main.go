package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oversight-hq/oversight/internal/client"
	"github.com/oversight-hq/oversight/internal/version"
)

// resolveServerURL returns the server URL from the flag or OVERSIGHT_SERVER_URL
// env var. Prints a warning to stderr when falling back to the env var.
// Returns an error if neither is set.
func resolveServerURL(cmd *cobra.Command, flagValue string) (string, error) {
	if cmd.Flags().Changed("server") {
		return flagValue, nil
	}
	if v := os.Getenv("OVERSIGHT_SERVER_URL"); v != "" {
		fmt.Fprintf(os.Stderr, "oversight: WARNING: using server URL from OVERSIGHT_SERVER_URL environment variable\n")
		return v, nil
	}
	return "", fmt.Errorf("server URL required: use --server flag or set OVERSIGHT_SERVER_URL")
}

func resolveToken(cmd *cobra.Command, flagValue string) (string, error) {
	if cmd.Flags().Changed("token") {
		return flagValue, nil
	}
	if v := os.Getenv("OVERSIGHT_ADMIN_TOKEN"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("admin token required: use --token flag or set OVERSIGHT_ADMIN_TOKEN")
}

func newClient(cmd *cobra.Command, serverURL, token string) (*client.Client, error) {
	url, err := resolveServerURL(cmd, serverURL)
	if err != nil {
		return nil, err
	}
	tok, err := resolveToken(cmd, token)
	if err != nil {
		return nil, err
	}
	return client.New(url, tok), nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:     "oversight",
		Short:   "Oversight - shadow-IT OAuth grant discovery and reconciliation",
		Version: version.Version,
	}
	rootCmd.SetVersionTemplate(version.String("oversight") + "\n")

	rootCmd.AddCommand(newOrgsCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newAppsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newOrgsCmd() *cobra.Command {
	var serverURL, token string

	cmd := &cobra.Command{
		Use:   "orgs",
		Short: "Manage organizations",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL")
	cmd.PersistentFlags().StringVar(&token, "token", "", "Admin Bearer token")

	var domain, name, provider string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd, serverURL, token)
			if err != nil {
				return err
			}
			org, err := c.CreateOrg(cmd.Context(), domain, name, provider)
			if err != nil {
				return err
			}
			fmt.Printf("created organization %s (%s, %s)\n", org.ID, org.Domain, org.Provider)
			return nil
		},
	}
	createCmd.Flags().StringVar(&domain, "domain", "", "Identity provider domain (required)")
	createCmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	createCmd.Flags().StringVar(&provider, "provider", "google", "Identity provider: google|microsoft")
	createCmd.MarkFlagRequired("domain")
	createCmd.MarkFlagRequired("name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd, serverURL, token)
			if err != nil {
				return err
			}
			orgs, err := c.ListOrgs(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDOMAIN\tPROVIDER\tNAME")
			for _, o := range orgs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.ID, o.Domain, o.Provider, o.Name)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func newSyncCmd() *cobra.Command {
	var (
		serverURL    string
		token        string
		refreshToken string
		wait         bool
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sync <org-id>",
		Short: "Trigger a sync run for an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd, serverURL, token)
			if err != nil {
				return err
			}
			orgID := args[0]
			resp, err := c.TriggerSync(cmd.Context(), orgID, refreshToken)
			if err != nil {
				return err
			}
			fmt.Printf("sync %s started\n", resp.SyncID)
			if !wait {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			st, err := c.WaitForSync(ctx, orgID, resp.SyncID, 2*time.Second)
			if err != nil {
				return err
			}
			fmt.Printf("sync %s: %s (%d%%) %s\n", st.ID, st.Status, st.Progress, st.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL")
	cmd.Flags().StringVar(&token, "token", "", "Admin Bearer token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Provider refresh token (optional after the first completed run)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the run reaches a terminal state")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Max time to wait with --wait")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var serverURL, token string
	var limit int

	cmd := &cobra.Command{
		Use:   "status <org-id> [sync-id]",
		Short: "Show sync status or history",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd, serverURL, token)
			if err != nil {
				return err
			}
			orgID := args[0]
			if len(args) == 2 {
				st, err := c.GetSync(cmd.Context(), orgID, args[1])
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s (%d%%) %s\n", st.ID, st.Status, st.Progress, st.Message)
				return nil
			}

			sts, err := c.ListSyncs(cmd.Context(), orgID, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tSTARTED\tMESSAGE")
			for _, st := range sts {
				fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\n",
					st.ID, st.Status, st.Progress, st.CreatedAt.Format(time.RFC3339), st.Message)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL")
	cmd.Flags().StringVar(&token, "token", "", "Admin Bearer token")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max history entries to show")
	return cmd
}

func newAppsCmd() *cobra.Command {
	var serverURL, token string

	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Inspect discovered applications",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL")
	cmd.PersistentFlags().StringVar(&token, "token", "", "Admin Bearer token")

	var risk, status string
	listCmd := &cobra.Command{
		Use:   "list <org-id>",
		Short: "List discovered applications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd, serverURL, token)
			if err != nil {
				return err
			}
			apps, err := c.ListApps(cmd.Context(), args[0], risk, status)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tRISK\tUSERS\tSTATUS\tCATEGORY")
			for _, a := range apps {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					a.ID, a.Name, a.RiskTier, a.UserCount, a.ManagementStatus, a.Category)
			}
			return w.Flush()
		},
	}
	listCmd.Flags().StringVar(&risk, "risk", "", "Filter by risk tier: LOW|MEDIUM|HIGH")
	listCmd.Flags().StringVar(&status, "status", "", "Filter by management status")

	statusCmd := &cobra.Command{
		Use:   "set-status <org-id> <app-id> <MANAGED|UNMANAGED|NEEDS_REVIEW>",
		Short: "Transition an application's management status",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd, serverURL, token)
			if err != nil {
				return err
			}
			if err := c.SetAppStatus(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Printf("application %s is now %s\n", args[1], args[2])
			return nil
		},
	}

	usersCmd := &cobra.Command{
		Use:   "users <org-id> <app-id>",
		Short: "List users who authorized an application",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd, serverURL, token)
			if err != nil {
				return err
			}
			rels, err := c.ListAppUsers(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EMAIL\tSTATUS\tSCOPES")
			for _, r := range rels {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.UserEmail, r.Status, r.Scopes)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(listCmd, statusCmd, usersCmd)
	return cmd
}
