package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token [appointment-id]",
		Short: "Mint an HS256 development token",
		Long: `Token signs a bearer token with --secret for --workspace and --role.
Customer tokens are scoped to one appointment.

Example:
  slotctl token -w ws-1 --secret dev
  slotctl token -w ws-1 --secret dev --role customer appt-123`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.workspace()
			if err != nil {
				return err
			}
			secret := a.v.GetString(keySecret)
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			appt := ""
			if len(args) == 1 {
				appt = args[0]
			}
			tok, err := mint(secret, ws, a.v.GetString(keyRole), appt, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newProposeCmd(a *app) *cobra.Command {
	var date, start, end, member string
	var version int64
	cmd := &cobra.Command{
		Use:   "propose <appointment-id>",
		Short: "Propose a new date and time",
		Long: `Propose opens a reschedule proposal as the token's party.

Example:
  slotctl propose appt-123 --date 2024-06-10 --start 14:00 --end 14:30
  slotctl propose appt-123 --date 2024-06-10 --start 14:00 --end 15:00 --member tm-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"newDate":              date,
				"newTime":              start,
				"newEndTime":           end,
				"teamMemberPreference": "any",
			}
			if member != "" {
				body["teamMemberId"] = member
				body["teamMemberPreference"] = "specific"
			}
			return a.transition(cmd, "/api/appointments/request-reschedule", args[0], version, body)
		},
	}
	f := cmd.Flags()
	f.StringVar(&date, "date", "", "new date (YYYY-MM-DD)")
	f.StringVar(&start, "start", "", "new start time (HH:MM)")
	f.StringVar(&end, "end", "", "new end time (HH:MM)")
	f.StringVar(&member, "member", "", "team member id; empty means any available")
	f.Int64Var(&version, "expected-version", 0, "fail with a conflict unless the appointment is at this version")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newActionCmd(a *app, use, short, path string) *cobra.Command {
	var version int64
	cmd := &cobra.Command{
		Use:   use + " <appointment-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.transition(cmd, path, args[0], version, map[string]any{})
		},
	}
	cmd.Flags().Int64Var(&version, "expected-version", 0, "fail with a conflict unless the appointment is at this version")
	return cmd
}

func newCancelCmd(a *app) *cobra.Command {
	var reason string
	var version int64
	cmd := &cobra.Command{
		Use:   "cancel <appointment-id>",
		Short: "Cancel an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if reason != "" {
				body["reason"] = reason
			}
			return a.transition(cmd, "/api/appointments/cancel", args[0], version, body)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason passed to the customer message")
	cmd.Flags().Int64Var(&version, "expected-version", 0, "fail with a conflict unless the appointment is at this version")
	return cmd
}

func (a *app) transition(cmd *cobra.Command, path, appointmentID string, version int64, body map[string]any) error {
	ws, err := a.workspace()
	if err != nil {
		return err
	}
	tok, err := a.bearer(appointmentID)
	if err != nil {
		return err
	}
	body["appointmentId"] = appointmentID
	body["workspaceId"] = ws
	if version > 0 {
		body["expectedVersion"] = version
	}
	c := newClient(a.v.GetString(keyAPI), tok, a.v.GetDuration(keyTimeout))
	raw, err := c.do(cmd.Context(), http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), raw)
}

func newPendingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List appointments waiting on a customer proposal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.get(cmd, keyAPI, "/api/appointments/pending-reschedules", url.Values{})
		},
	}
}

func newGridCmd(a *app) *cobra.Command {
	var date, view, layout string
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Render the calendar grid as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if date != "" {
				q.Set("date", date)
			}
			q.Set("view", view)
			q.Set("layout", layout)
			return a.get(cmd, keyAPI, "/api/calendar/grid", q)
		},
	}
	f := cmd.Flags()
	f.StringVar(&date, "date", "", "date (YYYY-MM-DD); defaults to today in the workspace")
	f.StringVar(&view, "view", "day", "day|week")
	f.StringVar(&layout, "layout", "stack", "stack|columns")
	return cmd
}

func newNotificationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "notifications",
		Short: "Show the workspace notification feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.get(cmd, keyNotifyAPI, "/api/notifications", url.Values{})
		},
	}
}

func (a *app) get(cmd *cobra.Command, baseKey, path string, q url.Values) error {
	ws, err := a.workspace()
	if err != nil {
		return err
	}
	tok, err := a.bearer("")
	if err != nil {
		return err
	}
	q.Set("workspaceId", ws)
	c := newClient(a.v.GetString(baseKey), tok, a.v.GetDuration(keyTimeout))
	raw, err := c.do(cmd.Context(), http.MethodGet, path, q, nil)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), raw)
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
