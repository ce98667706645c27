package watch

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransientMarking(t *testing.T) {
	t.Parallel()
	base := errors.New("connection reset")
	if IsTransient(base) {
		t.Fatal("unmarked error reported transient")
	}

	marked := Transient(base)
	if !IsTransient(marked) {
		t.Fatal("marked error not reported transient")
	}
	if !errors.Is(marked, base) {
		t.Fatal("marking hides the underlying error")
	}

	// Marking survives further wrapping up the call chain.
	wrapped := fmt.Errorf("check repo: %w", marked)
	if !IsTransient(wrapped) {
		t.Fatal("wrapping lost the transient mark")
	}

	if Transient(nil) != nil {
		t.Fatal("Transient(nil) != nil")
	}
}

func TestItemKey(t *testing.T) {
	t.Parallel()
	it := Item{Source: SourceGitHub, SourceID: "r#issue1", Type: TypeIssue, Title: "x"}
	want := Key{Source: SourceGitHub, SourceID: "r#issue1", Type: TypeIssue}
	if it.Key() != want {
		t.Fatalf("Key() = %+v, want %+v", it.Key(), want)
	}
}
