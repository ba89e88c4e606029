package parsers

import (
	"errors"
	"sync"
	"testing"

	"github.com/danmuck/atbench/internal/parsed"
	"github.com/danmuck/atbench/internal/protocol"
	"github.com/danmuck/atbench/internal/testutil/testlog"
)

func constParser(desc string) Func {
	return func(reply string, _ protocol.Status) (parsed.Result, bool) {
		return parsed.Result{Value: parsed.String(reply), Description: desc}, true
	}
}

func TestRegisterResolveAndDuplicate(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()

	if err := r.Register("AT+CGMI", "Manufacturer", Verbatim); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("AT+CGMI", "Vendor", Verbatim); !errors.Is(err, ErrDuplicateParser) {
		t.Fatalf("expected ErrDuplicateParser, got %v", err)
	}
	got, ok := r.Resolve("AT+CGMI")
	if !ok || got.Name != "Manufacturer" {
		t.Fatalf("resolve failed: ok=%v name=%q", ok, got.Name)
	}
}

func TestRegisterOverrideReplacesEntry(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	_ = r.Register("AT%CMNG=1,42,0", "SHA cert 0", constParser("old"))

	if err := r.Register("AT%CMNG=1,42,0", "SHA cert 0", constParser("new"), WithOverride()); err != nil {
		t.Fatalf("override: %v", err)
	}
	res, _ := r.Lookup("AT%CMNG=1,42,0").Apply("", protocol.StatusOK)
	if res.Description != "new" {
		t.Fatalf("expected overriding parser, got %q", res.Description)
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	if err := r.Register("  ", "blank", Verbatim); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand, got %v", err)
	}
	if err := r.Register("AT", "nil", nil); !errors.Is(err, ErrNilParser) {
		t.Fatalf("expected ErrNilParser, got %v", err)
	}
	if err := r.Register("AT", "", Verbatim); err != nil {
		t.Fatalf("register: %v", err)
	}
	if name := r.Name("AT"); name != "AT" {
		t.Fatalf("expected command as default name, got %q", name)
	}
}

func TestLookupFallbackPassesOnOK(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	e := r.Lookup("AT+UNKNOWN")
	if e.Name != "AT+UNKNOWN" {
		t.Fatalf("fallback name = %q", e.Name)
	}

	res, pass := e.Apply("some text", protocol.StatusOK)
	if !pass || res.Description != "some text" || res.Value != parsed.String("some text") {
		t.Fatalf("unexpected fallback result: %+v pass=%v", res, pass)
	}
	if _, pass := e.Apply("", protocol.StatusError); pass {
		t.Fatalf("fallback passed on ERROR")
	}
	if res, pass := e.Apply("", protocol.StatusNone); pass || res.Description != "(no reply)" {
		t.Fatalf("fallback on timeout: %+v pass=%v", res, pass)
	}
}

func TestApplyRecoversPanickingParser(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	_ = r.Register("AT+BAD", "Bad", func(string, protocol.Status) (parsed.Result, bool) {
		panic("index out of range")
	})

	res, pass := r.Lookup("AT+BAD").Apply("x", protocol.StatusOK)
	if pass || res.Description != "unparseable" {
		t.Fatalf("expected unparseable failure, got %+v pass=%v", res, pass)
	}
}

func TestListSortedByCommand(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	_ = r.Register("AT+Z", "Z", Verbatim)
	_ = r.Register("AT+A", "A", Verbatim)
	_ = r.Register("AT+M", "M", Verbatim)

	list := r.List()
	got := []string{list[0].Command, list[1].Command, list[2].Command}
	want := []string{"AT+A", "AT+M", "AT+Z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: %v", got)
		}
	}
}

func TestConcurrentRegistration(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Register("AT+SAME", "Same", Verbatim)
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrDuplicateParser) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful registration, got %d", ok)
	}
}
