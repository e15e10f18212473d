package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/womgr-core/internal/dashboard"
)

type dashboardFlags struct {
	url       string
	token     string
	path      string
	viewTitle string
	retries   int
	timeout   time.Duration
}

func newDashboardCmd(e *env, df *deviceFlags) *cobra.Command {
	f := &dashboardFlags{}
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Manage the device's card in a Lovelace dashboard",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.url, "url", "", "base URL of the Lovelace instance")
	pf.StringVar(&f.token, "token", "", "long-lived access token")
	pf.StringVar(&f.path, "path", "", "dashboard url_path (default "+dashboard.DefaultPath+")")
	pf.StringVar(&f.viewTitle, "view-title", dashboard.DefaultViewTitle, "title of a newly created view")
	pf.IntVar(&f.retries, "retries", 3, "attempts for transient failures")
	pf.DurationVar(&f.timeout, "request-timeout", 10*time.Second, "per-request timeout")
	//nolint:errcheck // flag exists
	cmd.MarkPersistentFlagRequired("url")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "cards",
			Short: "List the card titles on a dashboard",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return listCards(cmd, f)
			},
		},
		&cobra.Command{
			Use:   "add",
			Short: "Add or replace the device's card",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCard(cmd, e, df, f, func(ctx context.Context, r *dashboard.Reconciler, spec dashboard.CardSpec) error {
					if err := r.UpsertCard(ctx, spec); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "card %q written to %s\n", spec.Name, r.ResolvePath(spec))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove",
			Short: "Remove the device's card",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCard(cmd, e, df, f, func(ctx context.Context, r *dashboard.Reconciler, spec dashboard.CardSpec) error {
					if err := r.RemoveCard(ctx, spec); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "card %q removed from %s\n", spec.Name, r.ResolvePath(spec))
					return nil
				})
			},
		},
	)
	return cmd
}

func (f *dashboardFlags) store() (*dashboard.LovelaceStore, error) {
	return dashboard.NewLovelaceStore(dashboard.LovelaceOptions{
		URL:     f.url,
		Token:   f.token,
		Retries: f.retries,
		Timeout: f.timeout,
	})
}

// listCards prints one card title per line, in dashboard order.
func listCards(cmd *cobra.Command, f *dashboardFlags) error {
	store, err := f.store()
	if err != nil {
		return err
	}
	path := f.path
	if path == "" {
		path = dashboard.DefaultPath
	}

	out := cmd.OutOrStdout()
	doc, err := store.Load(cmd.Context(), path)
	if errors.Is(err, dashboard.ErrNotFound) {
		fmt.Fprintf(out, "no dashboard at %s\n", path)
		return nil
	}
	if err != nil {
		return err
	}
	for _, title := range doc.Titles(path) {
		fmt.Fprintln(out, title)
	}
	return nil
}

// withCard builds the card of the device described by the flags and hands
// it to fn with a reconciler over the Lovelace store.
func withCard(cmd *cobra.Command, e *env, df *deviceFlags, f *dashboardFlags,
	fn func(context.Context, *dashboard.Reconciler, dashboard.CardSpec) error) error {
	store, err := f.store()
	if err != nil {
		return err
	}
	r := dashboard.NewReconciler(store, dashboard.Options{ViewTitle: f.viewTitle})
	r.SetLogger(df.logger().Component("dashboard"))

	ctx := cmd.Context()
	registry, rec, err := df.open(ctx, e, f.path)
	if err != nil {
		return err
	}
	defer registry.Close(context.Background()) //nolint:errcheck // nothing was launched

	return fn(ctx, r, dashboard.SpecFor(rec))
}
