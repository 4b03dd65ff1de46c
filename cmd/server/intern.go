package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

func newInternCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intern",
		Short: "Manage the intern roster",
	}
	cmd.AddCommand(newInternCreateCmd(a), newInternShowCmd(a), newInternDeleteCmd(a))
	return cmd
}

// withEngine opens the store and runs fn against an engine that sends no
// notifications. Timers are not started; roster commands never arm any.
func (a *app) withEngine(ctx context.Context, fn func(e *timeoff.Engine) error) error {
	b, err := openBackend(ctx, a.cfg.Database, false)
	if err != nil {
		return err
	}
	defer b.Close()

	sched := timeoff.NewTimerScheduler(a.logger.Named("scheduler"))
	e := timeoff.NewEngine(b.store, sched, timeoff.NopNotifier{}, timeoff.Config{
		AutoApproveAfter: a.cfg.Leave.AutoApproveAfter,
		DecisionBaseURL:  a.cfg.HTTP.BaseURL,
	}, a.logger.Named("engine"))
	return fn(e)
}

func newInternCreateCmd(a *app) *cobra.Command {
	var (
		handle, name, email, start, end string
		days                            = map[timeoff.Category]*string{}
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an intern",
		RunE: func(cmd *cobra.Command, _ []string) error {
			startDate, err := generic.ParseDate(start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			endDate, err := generic.ParseDate(end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}

			ent := timeoff.Entitlements{}
			for c, v := range days {
				if *v == "" {
					continue
				}
				d, err := decimal.NewFromString(*v)
				if err != nil {
					return fmt.Errorf("--%s: %w", flagName(c), err)
				}
				ent[c] = d
			}

			intern := timeoff.NewIntern(handle, name, email, startDate, endDate, ent)
			return a.withEngine(cmd.Context(), func(e *timeoff.Engine) error {
				if err := e.RegisterIntern(cmd.Context(), intern); err != nil {
					return err
				}
				printIntern(cmd.OutOrStdout(), intern)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&handle, "handle", "", "chat handle, e.g. @alice")
	f.StringVar(&name, "name", "", "full name")
	f.StringVar(&email, "supervisor-email", "", "supervisor email address")
	f.StringVar(&start, "start", "", "internship start date (YYYY-MM-DD)")
	f.StringVar(&end, "end", "", "internship end date (YYYY-MM-DD)")
	for _, c := range timeoff.Categories {
		if !c.Capped() {
			continue
		}
		v := new(string)
		days[c] = v
		f.StringVar(v, flagName(c), "", fmt.Sprintf("%s entitlement in days", c))
	}
	_ = cmd.MarkFlagRequired("handle")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newInternShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <handle>",
		Short: "Print an intern and their balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *timeoff.Engine) error {
				intern, err := e.Intern(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printIntern(cmd.OutOrStdout(), intern)
				return nil
			})
		},
	}
}

func newInternDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <handle>",
		Short: "Remove an intern and all their applications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *timeoff.Engine) error {
				if err := e.RemoveIntern(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}

// flagName turns "off_in_lieu" into "off-in-lieu".
func flagName(c timeoff.Category) string {
	b := []byte(c)
	for i := range b {
		if b[i] == '_' {
			b[i] = '-'
		}
	}
	return string(b)
}

func printIntern(w io.Writer, i *timeoff.Intern) {
	fmt.Fprintf(w, "%s (%s)\n", i.Handle, i.Name)
	fmt.Fprintf(w, "supervisor: %s\n", i.SupervisorEmail)
	fmt.Fprintf(w, "internship: %s\n\n", i.Period())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEAVE TYPE\tENTITLEMENT\tTAKEN\tBALANCE")
	for _, c := range timeoff.Categories {
		acct := i.Account(c)
		entitlement, balance := generic.FormatDays(acct.Entitlement), generic.FormatDays(acct.Balance)
		if !c.Capped() {
			entitlement, balance = "-", "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c, entitlement, generic.FormatDays(acct.Taken), balance)
	}
	tw.Flush()
}
