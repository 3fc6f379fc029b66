package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"breakout_trading/internal/market"
	"breakout_trading/internal/models"
)

func req(symbol string, kind models.OrderKind) OrderRequest {
	return OrderRequest{Kind: kind, Spec: market.OrderSpec{Symbol: symbol}}
}

func TestOrderQueuePriorityOrder(t *testing.T) {
	q := NewOrderQueue(nil)

	q.Enqueue(req("AAA", models.KindEntry), PriorityEntry)
	q.Enqueue(req("BBB", models.KindPyramid), PriorityPyramid)
	q.Enqueue(req("CCC", models.KindClose), PriorityClose)

	got := drainRequests(q)
	want := []string{"CCC", "BBB", "AAA"}
	for i, sym := range want {
		if got[i].Spec.Symbol != sym {
			t.Errorf("position %d: expected %s, got %s", i, sym, got[i].Spec.Symbol)
		}
	}
}

func TestOrderQueueStableWithinPriority(t *testing.T) {
	q := NewOrderQueue(nil)

	// Same priority must drain in insertion order.
	for _, sym := range []string{"A", "B", "C", "D"} {
		q.Enqueue(req(sym, models.KindClose), PriorityClose)
	}

	got := drainRequests(q)
	for i, sym := range []string{"A", "B", "C", "D"} {
		if got[i].Spec.Symbol != sym {
			t.Errorf("position %d: expected %s, got %s", i, sym, got[i].Spec.Symbol)
		}
	}
}

func TestOrderQueueDrainProcessesOneAtATime(t *testing.T) {
	done := make(chan string, 3)
	q := NewOrderQueue(func(r OrderRequest) error {
		done <- r.Spec.Symbol
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue(req("LOW", models.KindEntry), PriorityEntry)
	q.Enqueue(req("HIGH", models.KindClose), PriorityClose)

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case s := <-done:
			got = append(got, s)
		case <-time.After(2 * time.Second):
			t.Fatal("drain loop did not process queued requests")
		}
	}
	// First pop happens immediately; whichever went first, nothing is lost
	// and the queue ends empty.
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(got))
	}
}

func TestOrderQueueDropsFailedSubmissions(t *testing.T) {
	calls := 0
	done := make(chan struct{}, 2)
	q := NewOrderQueue(func(r OrderRequest) error {
		calls++
		done <- struct{}{}
		return errors.New("rejected")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue(req("XYZ", models.KindEntry), PriorityEntry)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submission never attempted")
	}
	// A failed request must not be requeued.
	time.Sleep(50 * time.Millisecond)
	if calls != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", calls)
	}
	if q.Len() != 0 {
		t.Errorf("failed request was requeued, queue len %d", q.Len())
	}
}
