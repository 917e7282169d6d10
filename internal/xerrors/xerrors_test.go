package xerrors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

func stackContains(pcs []uintptr, substr string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, substr) {
			return true
		}
		if !more {
			return false
		}
	}
}

func stackOf(t *testing.T, err error) []uintptr {
	t.Helper()
	var hs interface{ StackPCs() []uintptr }
	if !errors.As(err, &hs) {
		t.Fatalf("%v carries no stack", err)
	}
	return hs.StackPCs()
}

func firstFunc(pcs []uintptr) string {
	fr, _ := runtime.CallersFrames(pcs).Next()
	return fr.Function
}

func TestNew(t *testing.T) {
	err := New("something broke")
	if err.Error() != "something broke" {
		t.Fatalf("Error() = %q", err.Error())
	}
	pcs := stackOf(t, err)
	if !strings.HasSuffix(firstFunc(pcs), "TestNew") {
		t.Fatalf("first frame = %s, want the caller", firstFunc(pcs))
	}
}

func TestNewf_WrapsWithW(t *testing.T) {
	err := Newf("load %s: %w", "de.json", errSentinel)
	if err.Error() != "load de.json: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("Newf should keep %w chains")
	}
	if !stackContains(stackOf(t, err), "TestNewf_WrapsWithW") {
		t.Fatal("stack should contain the caller")
	}
}

func TestWithStack(t *testing.T) {
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) != nil")
	}
	err := WithStack(errSentinel)
	if !errors.Is(err, errSentinel) || err.Error() != "sentinel" {
		t.Fatalf("WithStack changed the error: %v", err)
	}
	if !stackContains(stackOf(t, err), "TestWithStack") {
		t.Fatal("stack should contain the caller")
	}
}

func TestEnsureTrace(t *testing.T) {
	if EnsureTrace(nil) != nil {
		t.Fatal("EnsureTrace(nil) != nil")
	}

	plain := EnsureTrace(errSentinel)
	if len(stackOf(t, plain)) == 0 {
		t.Fatal("plain error should gain a stack")
	}

	already := New("has one")
	if got := EnsureTrace(already); got != already {
		t.Fatal("EnsureTrace should not restack an error that has a stack")
	}

	// a stack deeper in the chain counts
	outer := fmt.Errorf("outer: %w", already)
	if got := EnsureTrace(outer); got != outer {
		t.Fatal("EnsureTrace should see stacks through wrappers")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("wrapping nil should return nil")
	}

	err := Wrap(errSentinel, "send mail")
	if err.Error() != "send mail: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("Wrap should unwrap to the cause")
	}

	errf := Wrapf(errSentinel, "put %s", "contact/1.json")
	if errf.Error() != "put contact/1.json: sentinel" {
		t.Fatalf("Error() = %q", errf.Error())
	}
}

func TestWrap_RecordsCallSite(t *testing.T) {
	w1 := Wrap(errSentinel, "l1")
	w2 := Wrap(w1, "l2")

	pc1 := w1.(*wrapped).PC() //nolint:errorlint // internal type
	pc2 := w2.(*wrapped).PC() //nolint:errorlint // internal type
	if pc1 == 0 || pc2 == 0 || pc1 == pc2 {
		t.Fatalf("pcs = %x %x, want distinct non-zero", pc1, pc2)
	}
	fr, _ := runtime.CallersFrames([]uintptr{pc1}).Next()
	if !strings.HasSuffix(fr.Function, "TestWrap_RecordsCallSite") {
		t.Fatalf("pc resolves to %s", fr.Function)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"unmarked", errSentinel, KindUnknown},
		{"marked", Mark(errSentinel, KindInvalid), KindInvalid},
		{"wrapped mark", Wrap(Mark(errSentinel, KindUnavailable), "smtp"), KindUnavailable},
		{"outer mark wins", Mark(Mark(errSentinel, KindNotFound), KindUnavailable), KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf = %s, want %s", got, tt.want)
			}
		})
	}

	if Mark(nil, KindInvalid) != nil {
		t.Fatal("Mark(nil) != nil")
	}
	marked := Mark(errSentinel, KindNotFound)
	if marked.Error() != "sentinel" || !errors.Is(marked, errSentinel) {
		t.Fatal("Mark should be transparent")
	}
	if !IsKind(marked, KindNotFound) || IsKind(nil, KindUnknown) {
		t.Fatal("IsKind mismatch")
	}
}

func TestKind_String(t *testing.T) {
	for k, want := range map[Kind]string{
		KindUnknown:     "unknown",
		KindInvalid:     "invalid",
		KindNotFound:    "not_found",
		KindUnavailable: "unavailable",
		Kind(99):        "unknown",
	} {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}
