package health

import (
	"context"
	"errors"
	"sync"
	"testing"
)

var (
	errSMTP    = errors.New("smtp relay unreachable")
	errCatalog = errors.New("no active catalog")
)

func fail(err error) CheckFunc { return func(context.Context) error { return err } }

var pass = Fixed(true, "")

func TestFixed(t *testing.T) {
	ctx := context.Background()
	if err := Fixed(true, "ignored").Check(ctx); err != nil {
		t.Fatalf("Fixed(true): %v", err)
	}
	if err := Fixed(false, "maintenance").Check(ctx); err == nil || err.Error() != "maintenance" {
		t.Fatalf("Fixed(false, reason) = %v", err)
	}
	if err := Fixed(false, "").Check(ctx); err == nil || err.Error() != "unhealthy" {
		t.Fatalf("Fixed(false, \"\") = %v", err)
	}
}

func TestAll(t *testing.T) {
	tests := []struct {
		name   string
		probes []Probe
		want   []error
	}{
		{"empty", nil, nil},
		{"all pass", []Probe{pass, pass}, nil},
		{"nil skipped", []Probe{nil, pass, nil}, nil},
		{"one failure", []Probe{pass, fail(errSMTP)}, []error{errSMTP}},
		{"every failure reported", []Probe{fail(errSMTP), pass, fail(errCatalog)}, []error{errSMTP, errCatalog}},
		{"nil before failure", []Probe{nil, fail(errCatalog)}, []error{errCatalog}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := All(tt.probes...).Check(context.Background())
			if len(tt.want) == 0 {
				if err != nil {
					t.Fatalf("err = %v, want nil", err)
				}
				return
			}
			for _, w := range tt.want {
				if !errors.Is(err, w) {
					t.Fatalf("err = %v, does not contain %v", err, w)
				}
			}
		})
	}
}

func TestAll_EvaluatesEveryProbe(t *testing.T) {
	called := false
	after := CheckFunc(func(context.Context) error { called = true; return nil })
	_ = All(fail(errSMTP), after).Check(context.Background())
	if !called {
		t.Fatal("probe after a failure was skipped")
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	ctx := context.Background()

	if err := p.Check(ctx); err != nil {
		t.Fatalf("zero gate: %v", err)
	}
	g.Set("")
	if err := p.Check(ctx); err == nil || err.Error() != "draining" {
		t.Fatalf("empty reason: %v", err)
	}
	g.Set("shutting down")
	if err := p.Check(ctx); err == nil || err.Error() != "shutting down" {
		t.Fatalf("with reason: %v", err)
	}
	g.Clear()
	if err := p.Check(ctx); err != nil {
		t.Fatalf("after Clear: %v", err)
	}
}

func TestShutdownGate_Concurrent(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); g.Set("drain") }()
		go func() { defer wg.Done(); _ = p.Check(context.Background()) }()
	}
	wg.Wait()
	g.Clear()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("after Clear: %v", err)
	}
}

func TestReadinessComposition(t *testing.T) {
	var g ShutdownGate
	catalog := errCatalog
	ready := All(g.Probe(), Named("i18n", CheckFunc(func(context.Context) error { return catalog })))
	ctx := context.Background()

	if err := ready.Check(ctx); !errors.Is(err, errCatalog) {
		t.Fatalf("missing catalog: %v", err)
	}
	catalog = nil
	if err := ready.Check(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	g.Set("shutting down")
	if err := ready.Check(ctx); err == nil || err.Error() != "shutting down" {
		t.Fatalf("draining: %v", err)
	}
}
