package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/driftwatch/internal/model"
)

// TraceView is the audit trail of one decision, oldest first.
type TraceView struct {
	DecisionID string                   `json:"decision_id"`
	Records    []model.EvaluationRecord `json:"records"`

	// Verified is set when --verify was requested.
	Verified *bool    `json:"verified,omitempty"`
	Tampered []string `json:"tampered,omitempty"`
}

func (v TraceView) RenderText(w io.Writer) {
	if len(v.Records) == 0 {
		fmt.Fprintf(w, "%s: no evaluations\n", v.DecisionID)
	}
	for i, r := range v.Records {
		if i > 0 {
			fmt.Fprintln(w)
		}
		renderRecord(w, r, true)
	}
	if v.Verified != nil {
		if *v.Verified {
			fmt.Fprintf(w, "\nverified %d record(s)\n", len(v.Records))
		} else {
			fmt.Fprintf(w, "\nHASH MISMATCH: %s\n", joinOrNone(v.Tampered))
		}
	}
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	var verify bool

	cmd := &cobra.Command{
		Use:   "trace <decision-id>",
		Short: "Show a decision's evaluation history",
		Long: `Show the latest audit records of a decision, oldest first, with the trace of
every evaluation step.

With --verify each record's content hash is recomputed; a mismatch means
the record was altered after it was written and exits with code 1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return NewExitError(ExitCommandError, "--limit must not be negative")
			}

			e, closeEnv, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeEnv()
			ctx := commandContext(cmd)

			if _, err := e.store.GetDecision(ctx, args[0]); err != nil {
				return storeError("failed to read decision", err)
			}
			recs, err := e.store.ListEvaluations(ctx, args[0], limit)
			if err != nil {
				return storeError("failed to list evaluations", err)
			}
			view := TraceView{DecisionID: args[0], Records: recs}

			if !verify {
				return e.out.Success(view)
			}
			for _, r := range recs {
				ok, err := r.Verify()
				if err != nil {
					return WrapExitError(ExitFailure, "failed to verify record "+r.ID, err)
				}
				if !ok {
					view.Tampered = append(view.Tampered, r.ID)
				}
			}
			verified := len(view.Tampered) == 0
			view.Verified = &verified
			if verified {
				return e.out.Success(view)
			}
			if err := e.out.Error(ErrCodeIntegrity, "content hash mismatch", view); err != nil {
				return err
			}
			return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed verification", len(view.Tampered)))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of records (0 for all)")
	cmd.Flags().BoolVar(&verify, "verify", false, "recompute and check content hashes")
	return cmd
}
