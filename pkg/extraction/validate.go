package extraction

import (
	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

// ValidateSession checks the preconditions of a build: a non-nil session
// whose records all reference a use case with a non-empty ID, and default
// use cases with non-empty IDs.
func ValidateSession(session *model.Session, defaults []*model.UseCase) error {
	if session == nil {
		return errors.InvalidSession("", "session is nil")
	}

	for i, uc := range defaults {
		if uc == nil {
			return errors.InvalidSession(session.ID, "default use case is nil").
				WithContext("default", i)
		}
		if uc.ID == "" {
			return errors.InvalidSession(session.ID, "default use case has no identifier").
				WithContext("default", i)
		}
	}

	for i, exec := range session.Executions {
		if exec.UseCase == nil {
			return errors.InvalidSession(session.ID, "execution record has no use case").
				WithContext("record", i)
		}
		if exec.UseCase.ID == "" {
			return errors.InvalidSession(session.ID, "use case has no identifier").
				WithContext("record", i).
				WithContext("use_case", exec.UseCase.Name)
		}
	}

	return nil
}
