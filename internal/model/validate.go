package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared; validator caches struct metadata and is safe for
// concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists every problem found in a snapshot.
type ValidationError struct {
	DecisionID string
	Problems   []string
}

func (e *ValidationError) Error() string {
	if e.DecisionID != "" {
		return fmt.Sprintf("invalid snapshot for decision %s: %s", e.DecisionID, strings.Join(e.Problems, "; "))
	}
	return "invalid snapshot: " + strings.Join(e.Problems, "; ")
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks that a snapshot is well formed enough for the engine to
// evaluate. Struct tags cover enum and range checks; the remaining checks
// are relational.
func (s Snapshot) Validate() error {
	var problems []string

	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}

	if s.Decision.CreatedAt.IsZero() {
		problems = append(problems, "Snapshot.Decision.CreatedAt is zero")
	}
	if s.Decision.InvalidatedReason != nil && !s.Decision.Lifecycle.IsTerminal() {
		problems = append(problems, fmt.Sprintf("invalidated reason %q set on %s decision", *s.Decision.InvalidatedReason, s.Decision.Lifecycle))
	}

	seen := make(map[string]bool, len(s.Assumptions))
	for _, a := range s.Assumptions {
		if seen[a.ID] {
			problems = append(problems, fmt.Sprintf("assumption %s listed twice", a.ID))
		}
		seen[a.ID] = true
	}
	for _, d := range s.Dependencies {
		if d.DecisionID == s.Decision.ID {
			problems = append(problems, "decision depends on itself")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{DecisionID: s.Decision.ID, Problems: problems}
	}
	return nil
}
