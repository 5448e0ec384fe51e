package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
		closed    bool
		known     bool
	}{
		{name: "element not found", err: &rod.ElementNotFoundError{}, transient: true, known: true},
		{name: "object not found", err: &rod.ObjectNotFoundError{}, transient: true, known: true},
		{name: "not interactable", err: fmt.Errorf("click: %w", &rod.NotInteractableError{}), transient: true, known: true},
		{name: "cdp object gone", err: cdp.ErrObjNotFound, transient: true, known: true},
		{name: "deadline", err: context.DeadlineExceeded, transient: true, known: true},
		{name: "websocket eof", err: fmt.Errorf("read: %w", io.EOF), closed: true, known: true},
		{name: "closed conn", err: net.ErrClosed, closed: true, known: true},
		{name: "page gone", err: &rod.PageNotFoundError{}, closed: true, known: true},
		{name: "cdp session gone", err: cdp.ErrSessionNotFound, closed: true, known: true},
		{name: "unknown", err: errors.New("boom"), known: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, known := classifyError(tc.err)
			if known != tc.known {
				t.Fatalf("known = %v, want %v", known, tc.known)
			}
			if IsTransient(got) != tc.transient {
				t.Errorf("IsTransient = %v, want %v (%v)", IsTransient(got), tc.transient, got)
			}
			if IsSessionClosed(got) != tc.closed {
				t.Errorf("IsSessionClosed = %v, want %v (%v)", IsSessionClosed(got), tc.closed, got)
			}
		})
	}
}

func TestErrNotFoundIsTransient(t *testing.T) {
	if !errors.Is(ErrNotFound, ErrTransientUI) {
		t.Fatalf("ErrNotFound must be transient")
	}
	got, _ := classifyError(&rod.ElementNotFoundError{})
	if !errors.Is(got, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", got)
	}
}

func TestClassifyKeepsCancellation(t *testing.T) {
	got, known := classifyError(context.Canceled)
	if !known || !errors.Is(got, context.Canceled) || IsTransient(got) {
		t.Fatalf("cancellation must pass through untouched, got %v", got)
	}
}
