// Package model defines core data structures for behaviorflow.
package model

// UseCase is a unit of user-observable behavior owned by an external catalog.
// Vertices reference use cases; they never copy or own them.
type UseCase struct {
	// ID is the opaque, stable identifier. Vertices are matched on ID only.
	ID string

	// Name is the display name used in diagnostics and exports.
	Name string
}

// ObservedUseCaseExecution is one record of a session trace.
type ObservedUseCaseExecution struct {
	UseCase *UseCase

	// StartTime of the execution. The unit is implementation defined
	// (see config extraction.time_unit) but must be monotonic within a session.
	StartTime int64

	// EndTime is carried through from the monitoring data but not used
	// when computing time distances.
	EndTime int64
}

// Session is one recorded user's ordered sequence of use-case executions.
// Order is significant and reflects real temporal occurrence.
type Session struct {
	ID         string
	StartTime  int64
	EndTime    int64
	Executions []ObservedUseCaseExecution
}

// Len returns the number of execution records.
func (s *Session) Len() int {
	return len(s.Executions)
}

// Append adds an execution record to the end of the trace.
func (s *Session) Append(useCase *UseCase, startTime, endTime int64) {
	s.Executions = append(s.Executions, ObservedUseCaseExecution{
		UseCase:   useCase,
		StartTime: startTime,
		EndTime:   endTime,
	})
	if len(s.Executions) == 1 || startTime < s.StartTime {
		s.StartTime = startTime
	}
	if endTime > s.EndTime {
		s.EndTime = endTime
	}
}
