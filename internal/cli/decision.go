package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/driftwatch/internal/model"
)

// DecisionView is the output form of a decision.
type DecisionView struct {
	model.Decision
	// Verdict is the scheduler's staleness verdict, when requested.
	Verdict string `json:"verdict,omitempty"`
}

func (v DecisionView) RenderText(w io.Writer) {
	d := v.Decision
	fmt.Fprintf(w, "%s  %s  health=%d", d.ID, d.Lifecycle, d.HealthSignal)
	if d.InvalidatedReason != nil {
		fmt.Fprintf(w, "  reason=%s", *d.InvalidatedReason)
	}
	fmt.Fprintln(w)
	if d.Title != "" {
		fmt.Fprintf(w, "  title:      %s\n", d.Title)
	}
	if d.ExpiryDate != nil {
		fmt.Fprintf(w, "  expires:    %s\n", d.ExpiryDate.Format(time.RFC3339))
	}
	if d.LastEvaluatedAt != nil {
		fmt.Fprintf(w, "  evaluated:  %s\n", d.LastEvaluatedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "  evaluated:  never")
	}
	if d.NeedsEvaluation {
		fmt.Fprintf(w, "  pending:    %s\n", d.EvaluationReason)
	}
	if v.Verdict != "" {
		fmt.Fprintf(w, "  verdict:    %s\n", v.Verdict)
	}
}

// DecisionList is the output of decision list.
type DecisionList struct {
	Decisions []model.Decision `json:"decisions"`
}

func (l DecisionList) RenderText(w io.Writer) {
	if len(l.Decisions) == 0 {
		fmt.Fprintln(w, "No decisions.")
		return
	}
	for _, d := range l.Decisions {
		pending := ""
		if d.NeedsEvaluation {
			pending = "  (pending: " + d.EvaluationReason + ")"
		}
		fmt.Fprintf(w, "%-24s %-13s %3d%s\n", d.ID, d.Lifecycle, d.HealthSignal, pending)
	}
}

// NewDecisionCommand creates the decision command group.
func NewDecisionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decision",
		Short: "Create and manage decisions",
	}
	cmd.AddCommand(
		newDecisionCreateCommand(rootOpts),
		newDecisionShowCommand(rootOpts),
		newDecisionListCommand(rootOpts),
		newDecisionReviewCommand(rootOpts),
		newDecisionRetireCommand(rootOpts),
		newDecisionInvalidateCommand(rootOpts),
		newDecisionExpiryCommand(rootOpts),
	)
	return cmd
}

func newDecisionCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var title, expiry string

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a decision",
		Long: `Create a decision. New decisions start STABLE with health 100 and
are pending their first evaluation.

Examples:
  driftwatch decision create adopt-postgres --title "Adopt Postgres"
  driftwatch decision create vendor-x --expiry 2027-01-31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := model.Decision{ID: args[0], Title: title}
			if expiry != "" {
				t, err := parseTime(expiry)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --expiry", err)
				}
				d.ExpiryDate = &t
			}

			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()
			ctx := commandContext(cmd)

			d.CreatedAt = e.clock.Now()
			if err := e.store.CreateDecision(ctx, d); err != nil {
				return storeError("failed to create decision", err)
			}
			created, err := e.store.GetDecision(ctx, d.ID)
			if err != nil {
				return storeError("failed to read decision", err)
			}
			return e.out.Success(DecisionView{Decision: created})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "human readable title")
	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry date (YYYY-MM-DD or RFC 3339)")
	return cmd
}

func newDecisionShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()

			d, err := e.store.GetDecision(commandContext(cmd), args[0])
			if err != nil {
				return storeError("failed to read decision", err)
			}
			return e.out.Success(DecisionView{Decision: d})
		},
	}
}

func newDecisionListCommand(rootOpts *RootOptions) *cobra.Command {
	var lifecycle string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lifecycle != "" && !model.Lifecycle(lifecycle).Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --lifecycle %q", lifecycle))
			}

			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()

			ds, err := e.store.ListDecisions(commandContext(cmd), model.Lifecycle(lifecycle))
			if err != nil {
				return storeError("failed to list decisions", err)
			}
			return e.out.Success(DecisionList{Decisions: ds})
		},
	}
	cmd.Flags().StringVar(&lifecycle, "lifecycle", "", "only list decisions in this lifecycle")
	return cmd
}

// newDecisionActionCommand builds the review/retire/invalidate commands,
// which all take one id and print the decision afterwards.
func newDecisionActionCommand(rootOpts *RootOptions, use, short string, act func(*cobra.Command, *env, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()

			if err := act(cmd, e, args[0]); err != nil {
				return storeError("failed to "+use+" decision", err)
			}
			d, err := e.store.GetDecision(commandContext(cmd), args[0])
			if err != nil {
				return storeError("failed to read decision", err)
			}
			return e.out.Success(DecisionView{Decision: d})
		},
	}
}

func newDecisionReviewCommand(rootOpts *RootOptions) *cobra.Command {
	return newDecisionActionCommand(rootOpts, "review", "Record a human review; lifts a manual invalidation",
		func(cmd *cobra.Command, e *env, id string) error {
			return e.store.MarkReviewed(commandContext(cmd), id, e.clock.Now())
		})
}

func newDecisionRetireCommand(rootOpts *RootOptions) *cobra.Command {
	return newDecisionActionCommand(rootOpts, "retire", "Retire a decision permanently",
		func(cmd *cobra.Command, e *env, id string) error {
			return e.store.Retire(commandContext(cmd), id)
		})
}

func newDecisionInvalidateCommand(rootOpts *RootOptions) *cobra.Command {
	return newDecisionActionCommand(rootOpts, "invalidate", "Invalidate a decision by hand until it is reviewed",
		func(cmd *cobra.Command, e *env, id string) error {
			return e.store.Invalidate(commandContext(cmd), id)
		})
}

func newDecisionExpiryCommand(rootOpts *RootOptions) *cobra.Command {
	var date string
	var clearExpiry bool

	cmd := &cobra.Command{
		Use:   "expiry <id>",
		Short: "Set or clear a decision's expiry date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (date == "") == !clearExpiry {
				return NewExitError(ExitCommandError, "exactly one of --date or --clear is required")
			}
			var expiry *time.Time
			if date != "" {
				t, err := parseTime(date)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --date", err)
				}
				expiry = &t
			}

			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()
			ctx := commandContext(cmd)

			if err := e.store.SetExpiry(ctx, args[0], expiry, e.clock.Now()); err != nil {
				return storeError("failed to set expiry", err)
			}
			d, err := e.store.GetDecision(ctx, args[0])
			if err != nil {
				return storeError("failed to read decision", err)
			}
			return e.out.Success(DecisionView{Decision: d})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "new expiry date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().BoolVar(&clearExpiry, "clear", false, "remove the expiry date")
	return cmd
}
