package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestToDomainErrorPassesThroughWrapped(t *testing.T) {
	base := NewConflict("stale", map[string]any{"version": 3})
	wrapped := fmt.Errorf("save state: %w", base)

	de := ToDomainError(wrapped)
	if de.Code != "CONFLICT" || de.HTTPStatus != http.StatusConflict {
		t.Fatalf("expected conflict, got %+v", de)
	}
}

func TestToDomainErrorDefaults(t *testing.T) {
	if ToDomainError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}

	de := ToDomainError(errors.New("boom"))
	if de.Code != "INTERNAL_ERROR" || de.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal error, got %+v", de)
	}
	if de.Message == "boom" {
		t.Fatalf("internal message must not leak the cause")
	}

	de = ToDomainError(fmt.Errorf("llm: %w", context.DeadlineExceeded))
	if de.HTTPStatus != http.StatusGatewayTimeout {
		t.Fatalf("expected gateway timeout, got %d", de.HTTPStatus)
	}
}

func TestTokenExpiredCode(t *testing.T) {
	de := ToDomainError(NewTokenExpired())
	if de.Code != "AUTH_TOKEN_EXPIRED" || de.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("unexpected %+v", de)
	}
}

func TestBadGatewayKeepsCause(t *testing.T) {
	cause := errors.New("jira said 400")
	err := NewBadGateway("PROVIDER_ERROR", "ticket provider rejected the request", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be unwrappable")
	}
	if ToDomainError(err).Message != "ticket provider rejected the request" {
		t.Fatalf("unexpected message")
	}
}
