package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("error string = %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("WithInternal should copy, not mutate")
	}

	if base.Internal != nil {
		t.Fatal("original sentinel must stay untouched")
	}

	if with.Internal == nil {
		t.Fatal("internal cause should be set on the copy")
	}
}

func TestWithMessageCopies(t *testing.T) {
	with := ErrTeamFull.WithMessage("team Operations has reached its maximum size of 10")

	if with == ErrTeamFull {
		t.Fatal("expected WithMessage to return a copy")
	}
	if ErrTeamFull.Message == with.Message {
		t.Fatal("expected original message to remain unchanged")
	}
	if with.Code != ErrTeamFull.Code {
		t.Fatalf("expected code %s, got %s", ErrTeamFull.Code, with.Code)
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("FromError should hand back the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("code = %s, want internal server code", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("internal cause should be attached")
	}
}

func TestDomainErrorStatusCodes(t *testing.T) {
	cases := map[*AppError]int{
		ErrInvitationExpired: http.StatusBadRequest,
		ErrTeamFull:          http.StatusBadRequest,
		ErrConflict:          http.StatusConflict,
		ErrForbidden:         http.StatusForbidden,
		ErrNotFound:          http.StatusNotFound,
	}

	for err, want := range cases {
		if err.StatusCode != want {
			t.Fatalf("%s: expected status %d, got %d", err.Code, want, err.StatusCode)
		}
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	if err.Code != ErrBadRequest.Code {
		t.Fatalf("expected %s, got %s", ErrBadRequest.Code, err.Code)
	}
	if err.Message != "invalid payload" {
		t.Fatalf("message = %s", err.Message)
	}
	if err.StatusCode != ErrBadRequest.StatusCode {
		t.Fatalf("status = %d", err.StatusCode)
	}
}
