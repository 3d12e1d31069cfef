package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestBehaviorFlowError_Error(t *testing.T) {
	err := InvalidSession("S1", "execution has no use case").WithContext("index", 3)

	got := err.Error()
	want := "[E203] execution has no use case (index=3, session=S1)"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, CodeWriteFailed, "x") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	cause := fmt.Errorf("disk gone")
	err := Wrapf(cause, CodeWriteFailed, "write %s", "out.parquet")
	if !errors.Is(err, cause) {
		t.Error("expected wrapped error to unwrap to cause")
	}
	if !strings.HasSuffix(err.Error(), ": disk gone") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if err.Context != nil {
		t.Errorf("unexpected context %v", err.Context)
	}
}

func TestCodeHelpers(t *testing.T) {
	err := fmt.Errorf("outer: %w", ModelNotFound("m1"))

	if !IsCode(err, CodeModelNotFound) {
		t.Error("IsCode should see through fmt wrapping")
	}
	if GetCode(err) != CodeModelNotFound {
		t.Errorf("GetCode = %s", GetCode(err))
	}
	if GetCode(fmt.Errorf("plain")) != CodeUnknown {
		t.Error("plain errors should map to CodeUnknown")
	}
	if !errors.Is(err, New(CodeModelNotFound, "")) {
		t.Error("errors.Is should match on code")
	}
}

func TestRetryableAndFatal(t *testing.T) {
	tests := []struct {
		code      Code
		retryable bool
		fatal     bool
	}{
		{CodeTimeout, true, false},
		{CodeStoreWrite, true, false},
		{CodeInvalidSession, false, true},
		{CodePanic, false, true},
		{CodeParseFailed, false, false},
	}

	for _, tt := range tests {
		err := New(tt.code, "x")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.code, !tt.retryable, tt.retryable)
		}
		if IsFatal(err) != tt.fatal {
			t.Errorf("IsFatal(%s) = %v, want %v", tt.code, !tt.fatal, tt.fatal)
		}
	}
}

func TestMultiError(t *testing.T) {
	var m MultiError
	if m.Combined() != nil {
		t.Error("empty MultiError should combine to nil")
	}

	m.Add(nil)
	m.Add(fmt.Errorf("first"))
	if m.Combined().Error() != "first" {
		t.Errorf("single error should be returned as-is, got %v", m.Combined())
	}

	m.Add(ModelNotFound("m2"))
	if !m.HasErrors() {
		t.Error("expected HasErrors")
	}
	if !strings.Contains(m.Combined().Error(), "2 errors occurred") {
		t.Errorf("unexpected message %q", m.Combined().Error())
	}
}

func TestMultiError_Unwrap(t *testing.T) {
	var m MultiError
	m.Add(fmt.Errorf("first"))
	m.Add(fmt.Errorf("save: %w", ModelNotFound("m2")))

	if !IsCode(m.Combined(), CodeModelNotFound) {
		t.Error("IsCode should see errors collected in a MultiError")
	}
}

func TestHint(t *testing.T) {
	if CodeMissingColumn.Hint() == "" {
		t.Error("expected a hint for missing columns")
	}
	if CodeUnknown.Hint() != "" {
		t.Errorf("unexpected hint %q", CodeUnknown.Hint())
	}
}
