package image

import "context"

// step is one forward action of a saga and the action that undoes it.
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// compensationError carries the failure of a step together with the
// failure of undoing an earlier, completed step.
type compensationError struct {
	step    string
	err     error
	undone  string
	undoErr error
}

func (e *compensationError) Error() string {
	return e.step + ": " + e.err.Error() + "; undo " + e.undone + ": " + e.undoErr.Error()
}

// runSaga executes steps in order. When a step fails, completed steps are
// undone in reverse order and the step's error is returned unchanged, unless
// an undo fails, in which case a *compensationError is returned.
// Undo runs detached from ctx cancellation.
func runSaga(ctx context.Context, steps ...step) error {
	for i, s := range steps {
		err := s.do(ctx)
		if err == nil {
			continue
		}

		undoCtx := context.WithoutCancel(ctx)
		for j := i - 1; j >= 0; j-- {
			if steps[j].undo == nil {
				continue
			}
			if undoErr := steps[j].undo(undoCtx); undoErr != nil {
				return &compensationError{step: s.name, err: err, undone: steps[j].name, undoErr: undoErr}
			}
		}

		return err
	}

	return nil
}
