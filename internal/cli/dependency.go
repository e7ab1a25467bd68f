package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// DependencyView is the output of dependency commands.
type DependencyView struct {
	DecisionID   string   `json:"decision_id"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
}

func (v DependencyView) RenderText(w io.Writer) {
	fmt.Fprintf(w, "%s\n", v.DecisionID)
	fmt.Fprintf(w, "  depends on:   %s\n", joinOrNone(v.Dependencies))
	fmt.Fprintf(w, "  depended on:  %s\n", joinOrNone(v.Dependents))
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}

// NewDependencyCommand creates the dependency command group.
func NewDependencyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dependency",
		Short: "Manage dependencies between decisions",
	}
	cmd.AddCommand(
		newDependencyEditCommand(rootOpts, "add", "Record that a decision depends on another", true),
		newDependencyEditCommand(rootOpts, "remove", "Remove a dependency edge", false),
		newDependencyShowCommand(rootOpts),
	)
	return cmd
}

func newDependencyEditCommand(rootOpts *RootOptions, use, short string, add bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <decision-id> <depends-on-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()
			ctx := commandContext(cmd)

			decisionID, dependsOnID := args[0], args[1]
			if add {
				err = e.store.AddDependency(ctx, decisionID, dependsOnID)
			} else {
				err = e.store.RemoveDependency(ctx, decisionID, dependsOnID)
			}
			if err != nil {
				return storeError("failed to "+use+" dependency", err)
			}
			if _, err := e.svc.MarkForEvaluation(ctx, []string{decisionID}, "dependency_"+use+":"+dependsOnID); err != nil {
				return storeError("failed to flag decision", err)
			}
			return showDependencies(cmd, e, decisionID)
		},
	}
}

func newDependencyShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <decision-id>",
		Short: "Show a decision's dependencies and dependents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()
			if _, err := e.store.GetDecision(commandContext(cmd), args[0]); err != nil {
				return storeError("failed to read decision", err)
			}
			return showDependencies(cmd, e, args[0])
		},
	}
}

func showDependencies(cmd *cobra.Command, e *env, id string) error {
	ctx := commandContext(cmd)
	deps, err := e.store.ListDependencies(ctx, id)
	if err != nil {
		return storeError("failed to list dependencies", err)
	}
	dependents, err := e.store.ListDependents(ctx, id)
	if err != nil {
		return storeError("failed to list dependents", err)
	}
	return e.out.Success(DependencyView{
		DecisionID:   id,
		Dependencies: nonNil(deps),
		Dependents:   nonNil(dependents),
	})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
