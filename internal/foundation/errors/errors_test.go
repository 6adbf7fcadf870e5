package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "harness.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "invalid configuration" {
			t.Errorf("expected message 'invalid configuration', got %s", err.Message())
		}

		file, exists := err.Context().GetString("file")
		if !exists || file != "harness.yaml" {
			t.Errorf("expected context file=harness.yaml, got %v", file)
		}
	})

	t.Run("Error detection", func(t *testing.T) {
		err := ConfigError("test error").Build()

		if !IsClassified(err) {
			t.Error("expected error to be classified")
		}
		if !HasCategory(err, CategoryConfig) {
			t.Error("expected error to have config category")
		}
		if !HasSeverity(err, SeverityFatal) {
			t.Error("expected error to have fatal severity")
		}
		if err.CanRetry() {
			t.Error("expected config error to not be retryable")
		}
		if !err.IsFatal() {
			t.Error("expected config error to be fatal")
		}
	})

	t.Run("Detection through wrapping", func(t *testing.T) {
		inner := TransportError("sidecar fetch failed").WithContext("status", 404).Build()
		wrapped := fmt.Errorf("fetch asset: %w", inner)

		if !IsTransport(wrapped) {
			t.Error("expected wrapped error to be detected as transport")
		}
		if IsProcess(wrapped) {
			t.Error("transport error must not be detected as process")
		}
		if !IsRetryable(wrapped) {
			t.Error("expected transport error to be retryable")
		}
		if GetCategory(wrapped) != CategoryTransport {
			t.Errorf("expected category %s, got %s", CategoryTransport, GetCategory(wrapped))
		}
	})

	t.Run("Unclassified defaults", func(t *testing.T) {
		plain := errors.New("plain")
		if GetCategory(plain) != CategoryInternal {
			t.Errorf("expected %s for unclassified error", CategoryInternal)
		}
		if IsRetryable(plain) {
			t.Error("unclassified error must not be retryable")
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	t.Run("Fluent API", func(t *testing.T) {
		originalErr := errors.New("exit status 2")
		err := WrapError(originalErr, CategoryProcess, "tar failed").
			Warning().
			WithContext("command", "tar").
			WithContext("exit_code", 2).
			Build()

		if err.Category() != CategoryProcess {
			t.Errorf("expected category %s, got %s", CategoryProcess, err.Category())
		}
		if err.Severity() != SeverityWarning {
			t.Errorf("expected severity %s, got %s", SeverityWarning, err.Severity())
		}
		if err.RetryStrategy() != RetryNever {
			t.Errorf("expected retry strategy %s, got %s", RetryNever, err.RetryStrategy())
		}
		if !errors.Is(err, originalErr) {
			t.Error("expected error to wrap original error")
		}

		cmd, _ := err.Context().GetString("command")
		if cmd != "tar" {
			t.Errorf("expected command context 'tar', got %s", cmd)
		}
		code, _ := err.Context().Get("exit_code")
		if code != 2 {
			t.Errorf("expected exit_code context 2, got %v", code)
		}
	})

	t.Run("Convenience constructors", func(t *testing.T) {
		tests := []struct {
			name      string
			err       *ClassifiedError
			category  ErrorCategory
			retryable bool
		}{
			{"transport", TransportError("x").Build(), CategoryTransport, true},
			{"process", ProcessError("x").Build(), CategoryProcess, false},
			{"integrity", IntegrityError("x").Build(), CategoryIntegrity, true},
			{"filesystem", FileSystemError("x").Build(), CategoryFileSystem, false},
			{"state", StateError("x").Build(), CategoryState, false},
			{"validation", ValidationError("x").Build(), CategoryValidation, false},
			{"internal", InternalError("x").Build(), CategoryInternal, false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if tt.err.Category() != tt.category {
					t.Errorf("expected category %s, got %s", tt.category, tt.err.Category())
				}
				if tt.err.CanRetry() != tt.retryable {
					t.Errorf("expected CanRetry()=%v", tt.retryable)
				}
			})
		}
	})

	t.Run("WithContext does not mutate original", func(t *testing.T) {
		base := StateError("persist failed").Build()
		derived := base.WithContext("path", "/tmp/state.json")

		if _, ok := base.Context().Get("path"); ok {
			t.Error("expected base context to remain untouched")
		}
		if p, _ := derived.Context().GetString("path"); p != "/tmp/state.json" {
			t.Errorf("expected derived path context, got %q", p)
		}
	})
}

func TestErrorContext(t *testing.T) {
	var ctx ErrorContext
	ctx = ctx.Set("a", 1)
	if v, ok := ctx.Get("a"); !ok || v != 1 {
		t.Errorf("expected a=1, got %v", v)
	}

	merged := ctx.Merge(ErrorContext{"a": 2, "b": "x"})
	if v, _ := merged.Get("a"); v != 2 {
		t.Errorf("expected merge to prefer other, got %v", v)
	}
	if s, ok := merged.GetString("b"); !ok || s != "x" {
		t.Errorf("expected b=x, got %q", s)
	}
	if _, ok := merged.GetString("a"); ok {
		t.Error("expected GetString on int value to fail")
	}
}
