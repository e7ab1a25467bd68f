package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/driftwatch/internal/scheduler"
)

// StatusView is the staleness verdict for one decision.
type StatusView struct {
	DecisionID string `json:"decision_id"`
	Needed     bool   `json:"needs_evaluation"`
	Reason     string `json:"reason"`
	Trigger    string `json:"trigger,omitempty"`
}

// StatusList is the output of status.
type StatusList struct {
	Decisions []StatusView `json:"decisions"`
}

func (l StatusList) RenderText(w io.Writer) {
	if len(l.Decisions) == 0 {
		fmt.Fprintln(w, "Nothing pending.")
		return
	}
	for _, s := range l.Decisions {
		mark := " "
		if s.Needed {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %-24s %s\n", mark, s.DecisionID, s.Reason)
	}
}

func newStatusView(id string, st scheduler.Staleness) StatusView {
	v := StatusView{DecisionID: id, Needed: st.Needed, Reason: string(st.Reason)}
	if st.Needed {
		v.Trigger = st.Trigger()
	}
	return v
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [decision-id...]",
		Short: "Show whether decisions need evaluation",
		Long: `Show the staleness verdict for the given decisions, or list every
decision that needs evaluation when no ids are given. Nothing is evaluated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()
			ctx := commandContext(cmd)

			ids := args
			if len(ids) == 0 {
				d, err := e.store.ListDecisions(ctx, "")
				if err != nil {
					return storeError("failed to list decisions", err)
				}
				for _, dec := range d {
					ids = append(ids, dec.ID)
				}
			}

			out := StatusList{Decisions: []StatusView{}}
			for _, id := range ids {
				st, err := e.svc.NeedsEvaluation(ctx, id)
				if err != nil {
					return evaluationError(err)
				}
				if len(args) == 0 && !st.Needed {
					continue
				}
				out.Decisions = append(out.Decisions, newStatusView(id, st))
			}
			return e.out.Success(out)
		},
	}
}

// MarkView is the output of mark.
type MarkView struct {
	Requested int    `json:"requested"`
	Flagged   int    `json:"flagged"`
	Reason    string `json:"reason"`
}

func (v MarkView) RenderText(w io.Writer) {
	fmt.Fprintf(w, "flagged %d of %d decision(s): %s\n", v.Flagged, v.Requested, v.Reason)
}

// NewMarkCommand creates the mark command.
func NewMarkCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "mark <decision-id>...",
		Short: "Flag decisions for re-evaluation",
		Long: `Flag decisions for re-evaluation on the next sweep. RETIRED and
unknown decisions are ignored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return NewExitError(ExitCommandError, "--reason must not be empty")
			}

			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()

			n, err := e.svc.MarkForEvaluation(commandContext(cmd), args, reason)
			if err != nil {
				return storeError("failed to flag decisions", err)
			}
			return e.out.Success(MarkView{Requested: len(args), Flagged: n, Reason: reason})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "evaluation reason recorded in the trigger")
	return cmd
}
