package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/driftwatch/internal/events"
	"github.com/roach88/driftwatch/internal/model"
)

// AssumptionView is the output of assumption commands.
type AssumptionView struct {
	model.Assumption
	// Changed reports whether set-status changed the stored status.
	Changed bool `json:"changed"`
	// Flagged is the number of decisions flagged for re-evaluation.
	Flagged int `json:"flagged"`
}

func (v AssumptionView) RenderText(w io.Writer) {
	a := v.Assumption
	fmt.Fprintf(w, "%s  %s  %s\n", a.ID, a.Status, a.Scope)
	if a.Description != "" {
		fmt.Fprintf(w, "  %s\n", a.Description)
	}
	if v.Flagged > 0 {
		fmt.Fprintf(w, "  flagged %d decision(s) for re-evaluation\n", v.Flagged)
	}
}

// NewAssumptionCommand creates the assumption command group.
func NewAssumptionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assumption",
		Short: "Create, update and link assumptions",
	}
	cmd.AddCommand(
		newAssumptionCreateCommand(rootOpts),
		newAssumptionSetStatusCommand(rootOpts),
		newAssumptionLinkCommand(rootOpts),
	)
	return cmd
}

func parseStatus(s string) (model.AssumptionStatus, error) {
	status := model.AssumptionStatus(strings.ToUpper(s))
	switch status {
	case model.StatusHolding, model.StatusShaky, model.StatusBroken:
		return status, nil
	}
	return "", fmt.Errorf("invalid status %q: must be HOLDING, SHAKY or BROKEN", s)
}

func newAssumptionCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var status, scope, description string

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create an assumption",
		Long: `Create an assumption. UNIVERSAL assumptions apply to every decision;
DECISION_SPECIFIC ones apply only where linked.

Examples:
  driftwatch assumption create low-rates --description "Rates stay under 5%"
  driftwatch assumption create team-size --scope UNIVERSAL --status SHAKY`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseStatus(status)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --status", err)
			}
			sc := model.Scope(strings.ToUpper(scope))
			if sc != model.ScopeUniversal && sc != model.ScopeDecisionSpecific {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid --scope %q: must be UNIVERSAL or DECISION_SPECIFIC", scope))
			}

			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()
			ctx := commandContext(cmd)

			now := e.clock.Now()
			a := model.Assumption{
				ID:          args[0],
				Description: description,
				Status:      st,
				Scope:       sc,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := e.store.CreateAssumption(ctx, a); err != nil {
				return storeError("failed to create assumption", err)
			}

			// A new universal assumption that is not HOLDING affects every
			// decision immediately.
			view := AssumptionView{Assumption: a}
			if sc == model.ScopeUniversal && st != model.StatusHolding {
				if view.Flagged, err = e.dispatch(ctx, events.AssumptionStatusChanged(a.ID, st, now)); err != nil {
					return err
				}
			}
			return e.out.Success(view)
		},
	}
	cmd.Flags().StringVar(&status, "status", string(model.StatusHolding), "HOLDING, SHAKY or BROKEN")
	cmd.Flags().StringVar(&scope, "scope", string(model.ScopeDecisionSpecific), "UNIVERSAL or DECISION_SPECIFIC")
	cmd.Flags().StringVar(&description, "description", "", "what is being assumed")
	return cmd
}

func newAssumptionSetStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Change an assumption's status and flag affected decisions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseStatus(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid status", err)
			}

			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()
			ctx := commandContext(cmd)

			now := e.clock.Now()
			changed, err := e.store.SetAssumptionStatus(ctx, args[0], st, now)
			if err != nil {
				return storeError("failed to set assumption status", err)
			}
			view := AssumptionView{Changed: changed}
			if changed {
				if view.Flagged, err = e.dispatch(ctx, events.AssumptionStatusChanged(args[0], st, now)); err != nil {
					return err
				}
			}
			a, err := e.store.GetAssumption(ctx, args[0])
			if err != nil {
				return storeError("failed to read assumption", err)
			}
			view.Assumption = a
			e.out.VerboseLog("assumption %s changed=%t flagged=%d", a.ID, changed, view.Flagged)
			return e.out.Success(view)
		},
	}
}

func newAssumptionLinkCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "link <decision-id> <assumption-id>",
		Short: "Link a decision-specific assumption to a decision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()
			ctx := commandContext(cmd)

			decisionID, assumptionID := args[0], args[1]
			if err := e.store.LinkAssumption(ctx, decisionID, assumptionID); err != nil {
				return storeError("failed to link assumption", err)
			}
			n, err := e.svc.MarkForEvaluation(ctx, []string{decisionID}, "assumption_linked:"+assumptionID)
			if err != nil {
				return storeError("failed to flag decision", err)
			}
			a, err := e.store.GetAssumption(ctx, assumptionID)
			if err != nil {
				return storeError("failed to read assumption", err)
			}
			return e.out.Success(AssumptionView{Assumption: a, Flagged: n})
		},
	}
}
