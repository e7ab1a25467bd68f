package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/driftwatch/internal/events"
	"github.com/roach88/driftwatch/internal/model"
)

// ConstraintView is the output of constraint commands.
type ConstraintView struct {
	model.Constraint
	DecisionID string `json:"decision_id,omitempty"`
	Violated   *bool  `json:"violated,omitempty"`
	Changed    bool   `json:"changed"`
	Flagged    int    `json:"flagged"`
}

func (v ConstraintView) RenderText(w io.Writer) {
	c := v.Constraint
	fmt.Fprintf(w, "%s  %s\n", c.ID, c.Category)
	if c.Description != "" {
		fmt.Fprintf(w, "  %s\n", c.Description)
	}
	if v.DecisionID != "" && v.Violated != nil {
		state := "satisfied"
		if *v.Violated {
			state = "VIOLATED"
		}
		fmt.Fprintf(w, "  linked to %s: %s\n", v.DecisionID, state)
	}
	if v.Flagged > 0 {
		fmt.Fprintf(w, "  flagged %d decision(s) for re-evaluation\n", v.Flagged)
	}
}

// NewConstraintCommand creates the constraint command group.
func NewConstraintCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "constraint",
		Short: "Create and link constraints",
	}
	cmd.AddCommand(
		newConstraintCreateCommand(rootOpts),
		newConstraintLinkCommand(rootOpts),
	)
	return cmd
}

var constraintCategories = []model.ConstraintCategory{
	model.CategoryLegal,
	model.CategoryBudget,
	model.CategoryPolicy,
	model.CategoryTechnical,
	model.CategoryCompliance,
	model.CategoryOther,
}

func parseCategory(s string) (model.ConstraintCategory, error) {
	c := model.ConstraintCategory(strings.ToUpper(s))
	for _, known := range constraintCategories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid category %q", s)
}

func newConstraintCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var category, description string

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a constraint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := parseCategory(category)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --category", err)
			}

			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()

			c := model.Constraint{
				ID:          args[0],
				Description: description,
				Category:    cat,
				CreatedAt:   e.clock.Now(),
			}
			if err := e.store.CreateConstraint(commandContext(cmd), c); err != nil {
				return storeError("failed to create constraint", err)
			}
			return e.out.Success(ConstraintView{Constraint: c})
		},
	}
	cmd.Flags().StringVar(&category, "category", string(model.CategoryOther),
		"LEGAL, BUDGET, POLICY, TECHNICAL, COMPLIANCE or OTHER")
	cmd.Flags().StringVar(&description, "description", "", "the organizational fact")
	return cmd
}

func newConstraintLinkCommand(rootOpts *RootOptions) *cobra.Command {
	var violated bool

	cmd := &cobra.Command{
		Use:   "link <decision-id> <constraint-id>",
		Short: "Link a constraint to a decision or update its violated flag",
		Long: `Link a constraint to a decision. Running link again with a different
--violated value updates the existing link and flags the decision.

Examples:
  driftwatch constraint link adopt-postgres gdpr
  driftwatch constraint link adopt-postgres gdpr --violated`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()
			ctx := commandContext(cmd)

			decisionID, constraintID := args[0], args[1]
			changed, err := e.store.LinkConstraint(ctx, decisionID, constraintID, violated)
			if err != nil {
				return storeError("failed to link constraint", err)
			}
			view := ConstraintView{DecisionID: decisionID, Violated: &violated, Changed: changed}
			if changed {
				if view.Flagged, err = e.dispatch(ctx, events.ConstraintLinkChanged(decisionID, constraintID, e.clock.Now())); err != nil {
					return err
				}
			}
			c, err := e.store.GetConstraint(ctx, constraintID)
			if err != nil {
				return storeError("failed to read constraint", err)
			}
			view.Constraint = c
			return e.out.Success(view)
		},
	}
	cmd.Flags().BoolVar(&violated, "violated", false, "mark the constraint as violated for this decision")
	return cmd
}
