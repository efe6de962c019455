package presale

import (
	"testing"

	"dogxsale/core/events"
	"dogxsale/core/types"
)

func TestEngineEmitsLifecycleEvents(t *testing.T) {
	env := newTestEnv(t, singleLevelParams())
	recorder := &events.Recorder{}
	env.engine.SetEmitter(recorder)

	env.depositAndStart(t, 100)

	buyer := newTestAddress(0xB1)
	env.state.fund(buyer, PaymentSymbol, 50_000_000)
	if _, err := env.engine.Buy(env.id, buyer, 50_000_000); err != nil {
		t.Fatalf("buy: %v", err)
	}

	want := []string{EventTypeSaleDeposited, EventTypeSaleStarted, EventTypeSalePurchase}
	if len(recorder.Events) != len(want) {
		t.Fatalf("recorded %d events, want %d", len(recorder.Events), len(want))
	}
	for i, evt := range recorder.Events {
		if evt.EventType() != want[i] {
			t.Fatalf("event %d = %q, want %q", i, evt.EventType(), want[i])
		}
	}

	purchase, ok := recorder.Events[2].(interface{ Event() *types.Event })
	if !ok {
		t.Fatalf("purchase event does not expose payload")
	}
	attrs := purchase.Event().Attributes
	if attrs["tokensOut"] != "50" || attrs["paymentSpent"] != "50000000" {
		t.Fatalf("unexpected purchase attributes: %v", attrs)
	}
	if attrs["softCapped"] != "true" {
		t.Fatalf("soft cap flag missing from event: %v", attrs)
	}
}

func TestFailedOperationsEmitNothing(t *testing.T) {
	env := newTestEnv(t, singleLevelParams())
	recorder := &events.Recorder{}
	env.engine.SetEmitter(recorder)

	buyer := newTestAddress(0xB1)
	if _, err := env.engine.Buy(env.id, buyer, 1_000_000); err == nil {
		t.Fatalf("expected not-live failure")
	}
	if err := env.engine.Start(env.id, newTestAddress(0x01)); err == nil {
		t.Fatalf("expected unauthorized failure")
	}
	if len(recorder.Events) != 0 {
		t.Fatalf("failed operations must not emit events, got %d", len(recorder.Events))
	}
}
