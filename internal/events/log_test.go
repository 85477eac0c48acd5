package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
)

func pinch(x float64) gesture.Event {
	return gesture.Event{
		Kind:      gesture.KindPinch,
		HandID:    uuid.New(),
		Point:     detector.Point{X: x, Y: 100},
		Timestamp: time.Now(),
	}
}

func TestLog_Append(t *testing.T) {
	l := NewLog()

	first := l.Append(pinch(1), pinch(2))
	second := l.Append(pinch(3))

	if len(first) != 2 || first[0].Seq != 1 || first[1].Seq != 2 {
		t.Errorf("first batch seqs = %+v, want 1,2", first)
	}
	if len(second) != 1 || second[0].Seq != 3 {
		t.Errorf("second batch seq = %+v, want 3", second)
	}
	if l.Len() != 3 {
		t.Errorf("Len() = %d, want 3", l.Len())
	}

	if got := l.Append(); got != nil {
		t.Errorf("Append() with no events = %v, want nil", got)
	}
}

func TestLog_ReplayAndSince(t *testing.T) {
	l := NewLog()
	l.Append(pinch(1), pinch(2), pinch(3))

	tests := []struct {
		name  string
		since uint64
		want  []float64
	}{
		{"from start", 0, []float64{1, 2, 3}},
		{"after first", 1, []float64{2, 3}},
		{"at tail", 3, nil},
		{"past tail", 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.Since(tt.since)
			if got == nil {
				t.Fatal("Since() must return a non-nil slice")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.Point.X != tt.want[i] {
					t.Errorf("event %d X = %f, want %f", i, e.Point.X, tt.want[i])
				}
			}
		})
	}

	t.Run("replay returns a copy", func(t *testing.T) {
		replay := l.Replay()
		replay[0].Point.X = 99
		if l.Replay()[0].Point.X != 1 {
			t.Error("modifying a replay must not change the log")
		}
	})
}

func TestSubscription_Next(t *testing.T) {
	t.Run("replays then follows", func(t *testing.T) {
		l := NewLog()
		l.Append(pinch(1))

		sub := l.Subscribe(0)
		defer sub.Close()

		go func() {
			time.Sleep(10 * time.Millisecond)
			l.Append(pinch(2))
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		for want := uint64(1); want <= 2; want++ {
			e, err := sub.Next(ctx)
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			if e.Seq != want {
				t.Errorf("Seq = %d, want %d", e.Seq, want)
			}
		}
		if sub.Cursor() != 2 {
			t.Errorf("Cursor() = %d, want 2", sub.Cursor())
		}
	})

	t.Run("subscribe now skips history", func(t *testing.T) {
		l := NewLog()
		l.Append(pinch(1), pinch(2))

		sub := l.SubscribeNow()
		l.Append(pinch(3))

		e, err := sub.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if e.Seq != 3 {
			t.Errorf("Seq = %d, want 3", e.Seq)
		}
	})

	t.Run("context cancel", func(t *testing.T) {
		l := NewLog()
		sub := l.SubscribeNow()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, err := sub.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Next() error = %v, want deadline exceeded", err)
		}
	})

	t.Run("subscription close wakes waiter", func(t *testing.T) {
		l := NewLog()
		sub := l.SubscribeNow()

		errCh := make(chan error, 1)
		go func() {
			_, err := sub.Next(context.Background())
			errCh <- err
		}()

		time.Sleep(10 * time.Millisecond)
		sub.Close()
		sub.Close()

		select {
		case err := <-errCh:
			if !errors.Is(err, ErrClosed) {
				t.Errorf("Next() error = %v, want ErrClosed", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Next() did not return after Close")
		}
	})

	t.Run("log close drains then ends", func(t *testing.T) {
		l := NewLog()
		sub := l.Subscribe(0)
		l.Append(pinch(1))
		l.Close()
		l.Close()

		if _, err := sub.Next(context.Background()); err != nil {
			t.Fatalf("expected buffered event before close, got %v", err)
		}
		if _, err := sub.Next(context.Background()); !errors.Is(err, ErrClosed) {
			t.Errorf("Next() error = %v, want ErrClosed", err)
		}
		if got := l.Append(pinch(2)); got != nil {
			t.Errorf("Append() after Close = %v, want nil", got)
		}
	})
}

func TestSubscription_NextBatch(t *testing.T) {
	l := NewLog()
	l.Append(pinch(1), pinch(2), pinch(3), pinch(4), pinch(5))

	sub := l.Subscribe(0)
	defer sub.Close()

	first, err := sub.NextBatch(context.Background(), 3)
	if err != nil {
		t.Fatalf("NextBatch() error = %v", err)
	}
	if len(first) != 3 || first[0].Seq != 1 || first[2].Seq != 3 {
		t.Errorf("first batch = %d events", len(first))
	}

	second, err := sub.NextBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("NextBatch() error = %v", err)
	}
	if len(second) != 2 || second[0].Seq != 4 {
		t.Errorf("second batch = %d events starting at %d", len(second), second[0].Seq)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := sub.NextBatch(ctx, 10); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("NextBatch() at tail error = %v, want deadline exceeded", err)
	}
}

func TestLog_ConcurrentSubscribersSeeEverything(t *testing.T) {
	const total = 200

	l := NewLog()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make([][]uint64, 3)
	for i := range results {
		sub := l.Subscribe(0)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sub.Close()
			for len(results[i]) < total {
				e, err := sub.Next(ctx)
				if err != nil {
					return
				}
				results[i] = append(results[i], e.Seq)
			}
		}(i)
	}

	for i := 0; i < total; i++ {
		l.Append(pinch(float64(i)))
	}
	wg.Wait()

	for i, seqs := range results {
		if len(seqs) != total {
			t.Fatalf("subscriber %d got %d events, want %d", i, len(seqs), total)
		}
		for j, seq := range seqs {
			if seq != uint64(j+1) {
				t.Fatalf("subscriber %d event %d has Seq %d", i, j, seq)
			}
		}
	}
}
