package gate

import (
	"context"
	"errors"
	"testing"

	"AgentSwap-Chain/internal/plan"
)

type stubPauses struct {
	paused bool
	err    error
	calls  int
}

func (s *stubPauses) Paused(context.Context) (bool, error) {
	s.calls++
	return s.paused, s.err
}

func TestCheckSkipsHoldWithoutChainRead(t *testing.T) {
	pauses := &stubPauses{}
	g := New(pauses)

	result, err := g.Check(context.Background(), plan.TradePlan{Action: plan.ActionHold})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Proceed || result.Reason != SkipHold {
		t.Fatalf("expected hold skip, got %+v", result)
	}
	if pauses.calls != 0 {
		t.Fatalf("hold plans must not touch the chain, got %d reads", pauses.calls)
	}
}

func TestCheckSkipsWhenPaused(t *testing.T) {
	g := New(&stubPauses{paused: true})

	result, err := g.Check(context.Background(), plan.TradePlan{Action: plan.ActionBuy})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Proceed || result.Reason != SkipPaused {
		t.Fatalf("expected paused skip, got %+v", result)
	}
}

func TestCheckProceedsWhenActive(t *testing.T) {
	g := New(&stubPauses{})

	result, err := g.Check(context.Background(), plan.TradePlan{Action: plan.ActionSell})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Proceed {
		t.Fatalf("expected proceed, got %+v", result)
	}
}

func TestCheckReadsLiveStateEachCall(t *testing.T) {
	pauses := &stubPauses{}
	g := New(pauses)

	for i := 0; i < 3; i++ {
		if _, err := g.Check(context.Background(), plan.TradePlan{Action: plan.ActionBuy}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if pauses.calls != 3 {
		t.Fatalf("pause state must be re-read on every check, got %d reads", pauses.calls)
	}
}

func TestCheckSurfacesChainFailure(t *testing.T) {
	g := New(&stubPauses{err: errors.New("rpc down")})

	if _, err := g.Check(context.Background(), plan.TradePlan{Action: plan.ActionBuy}); err == nil {
		t.Fatalf("expected chain failure error")
	}
}
