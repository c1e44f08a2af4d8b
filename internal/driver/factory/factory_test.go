package factory

import (
	"errors"
	"testing"

	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/testutil/testlog"
)

func TestNewBuildsEveryKind(t *testing.T) {
	for _, kind := range driver.Kinds() {
		d, err := New(kind, Deps{Logger: testlog.Logger(t)})
		if err != nil {
			t.Fatalf("new %s: %v", kind, err)
		}
		if d.Kind() != kind {
			t.Fatalf("built %s for %s", d.Kind(), kind)
		}
		if d.Ready() {
			t.Fatalf("%s ready before startup", kind)
		}
	}
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(driver.KindUnknown, Deps{})
	if !errors.Is(err, driver.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestKindsMatchesDriverKinds(t *testing.T) {
	got := Kinds()
	want := driver.Kinds()
	if len(got) != len(want) {
		t.Fatalf("kinds=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kinds=%v want %v", got, want)
		}
	}
}
