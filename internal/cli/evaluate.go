package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/driftwatch/internal/model"
	"github.com/roach88/driftwatch/internal/scheduler"
)

// EvaluationView is the output of a single evaluation.
type EvaluationView struct {
	DecisionID string                  `json:"decision_id"`
	Evaluated  bool                    `json:"evaluated"`
	Persisted  bool                    `json:"persisted"`
	Reason     string                  `json:"reason,omitempty"`
	Record     *model.EvaluationRecord `json:"record,omitempty"`
}

func (v EvaluationView) RenderText(w io.Writer) {
	if !v.Evaluated {
		fmt.Fprintf(w, "%s: up to date (%s)\n", v.DecisionID, v.Reason)
		return
	}
	renderRecord(w, *v.Record, true)
}

// renderRecord prints one audit record, optionally with its trace.
func renderRecord(w io.Writer, r model.EvaluationRecord, withTrace bool) {
	fmt.Fprintf(w, "%s  %s  %s -> %s  health %d -> %d",
		r.DecisionID, r.ID, r.PreviousLifecycle, r.NewLifecycle, r.PreviousHealth, r.NewHealth)
	if r.InvalidatedReason != nil {
		fmt.Fprintf(w, "  reason=%s", *r.InvalidatedReason)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  at %s  trigger=%s\n", r.EvaluatedAt.Format("2006-01-02T15:04:05.000Z07:00"), r.Trigger)
	if !withTrace {
		return
	}
	for _, s := range r.Trace {
		fmt.Fprintf(w, "  %d. %-24s %-8s %3d -> %3d  %s\n",
			s.Step, s.Name, s.Status, s.HealthBefore, s.HealthAfter, s.Message)
	}
}

// BatchView is the output of a batch evaluation or sweep.
type BatchView struct {
	Evaluated   int                      `json:"evaluated"`
	Skipped     int                      `json:"skipped"`
	Failed      int                      `json:"failed"`
	Deferred    int                      `json:"deferred"`
	Records     []model.EvaluationRecord `json:"records"`
	Errors      map[string]string        `json:"errors,omitempty"`
	DeferredIDs []string                 `json:"deferred_ids,omitempty"`
}

func newBatchView(r *scheduler.BatchResult) BatchView {
	v := BatchView{
		Evaluated:   r.Evaluated,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		Deferred:    r.Deferred,
		Records:     make([]model.EvaluationRecord, 0, len(r.Results)),
		DeferredIDs: r.DeferredIDs,
	}
	for _, res := range r.Results {
		if res.Persisted {
			v.Records = append(v.Records, res.Record)
		}
	}
	if len(r.Errors) > 0 {
		v.Errors = make(map[string]string, len(r.Errors))
		for id, err := range r.Errors {
			v.Errors[id] = err.Error()
		}
	}
	return v
}

func (v BatchView) RenderText(w io.Writer) {
	fmt.Fprintf(w, "evaluated=%d skipped=%d failed=%d deferred=%d\n",
		v.Evaluated, v.Skipped, v.Failed, v.Deferred)
	for _, r := range v.Records {
		renderRecord(w, r, false)
	}
	ids := make([]string, 0, len(v.Errors))
	for id := range v.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "FAILED %s: %s\n", id, v.Errors[id])
	}
	if len(v.DeferredIDs) > 0 {
		fmt.Fprintf(w, "deferred: %s\n", joinOrNone(v.DeferredIDs))
	}
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	var force, all bool

	cmd := &cobra.Command{
		Use:   "evaluate [decision-id...]",
		Short: "Evaluate decisions that need it",
		Long: `Evaluate one or more decisions.

Decisions are only evaluated when the staleness policy says they need it:
flagged by a change, never evaluated, stale, or close to expiry. --force
evaluates regardless. With --all (or no ids) every pending decision is
evaluated as one batch.

Exit codes:
  0 - all evaluations succeeded or were skipped
  1 - at least one evaluation failed
  2 - command error (unknown decision, bad flags)

Examples:
  driftwatch evaluate adopt-postgres
  driftwatch evaluate adopt-postgres vendor-x --force
  driftwatch evaluate --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return NewExitError(ExitCommandError, "--all cannot be combined with decision ids")
			}

			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()
			ctx := commandContext(cmd)

			if len(args) == 1 {
				return evaluateOne(cmd, e, args[0], force)
			}

			res, err := e.svc.EvaluateBatch(ctx, args, force)
			if err != nil {
				return WrapExitError(ExitFailure, "batch evaluation failed", err)
			}
			if err := e.out.Success(newBatchView(res)); err != nil {
				return err
			}
			if res.Failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d evaluation(s) failed", res.Failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "evaluate even when the decision is up to date")
	cmd.Flags().BoolVar(&all, "all", false, "evaluate every decision needing evaluation")
	return cmd
}

func evaluateOne(cmd *cobra.Command, e *env, id string, force bool) error {
	ctx := commandContext(cmd)
	res, err := e.svc.EvaluateIfNeeded(ctx, id, force)
	if err != nil {
		return evaluationError(err)
	}
	if res == nil {
		st, err := e.svc.NeedsEvaluation(ctx, id)
		if err != nil {
			return evaluationError(err)
		}
		return e.out.Success(EvaluationView{DecisionID: id, Reason: string(st.Reason)})
	}
	return e.out.Success(EvaluationView{
		DecisionID: id,
		Evaluated:  true,
		Persisted:  res.Persisted,
		Reason:     res.Staleness.Trigger(),
		Record:     &res.Record,
	})
}

// evaluationError maps scheduler failures to exit codes. Input assembly
// failures are usually a bad id and count as command errors.
func evaluationError(err error) error {
	if scheduler.IsInputError(err) {
		return WrapExitError(ExitCommandError, "evaluation input invalid", err)
	}
	return WrapExitError(ExitFailure, fmt.Sprintf("evaluation failed [%s]", scheduler.CodeOf(err)), err)
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one scheduled sweep over pending decisions",
		Long: `Run one sweep: the batch the run daemon executes on every tick,
bounded by scheduler.sweep_deadline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()

			sw := scheduler.NewSweeper(e.svc, e.cfg.SweepInterval(), e.cfg.SweepDeadline())
			res, err := sw.SweepOnce(commandContext(cmd))
			if err != nil {
				return WrapExitError(ExitFailure, "sweep failed", err)
			}
			if err := e.out.Success(newBatchView(res)); err != nil {
				return err
			}
			if res.Failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d evaluation(s) failed", res.Failed))
			}
			return nil
		},
	}
}
