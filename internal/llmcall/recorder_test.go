package llmcall

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorder_CloseDrains(t *testing.T) {
	store := openTestStore(t)
	rec := NewRecorder(RecorderConfig{
		Store:         store,
		BatchSize:     100,
		FlushInterval: time.Hour,
		Logger:        quietLogger(),
	})

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		rec.Record(newCall(fmt.Sprintf("c%d", i), "generate", now, true))
	}
	rec.Close()

	calls, err := store.List(context.Background(), QueryFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(calls) != 5 {
		t.Errorf("got %d calls after Close, want 5", len(calls))
	}

	// Record after Close is a no-op and Close is idempotent.
	rec.Record(newCall("late", "generate", now, true))
	rec.Close()
}

func TestRecorder_Flush(t *testing.T) {
	store := openTestStore(t)
	rec := NewRecorder(RecorderConfig{
		Store:         store,
		BatchSize:     100,
		FlushInterval: time.Hour,
		Logger:        quietLogger(),
	})
	defer rec.Close()

	rec.Record(newCall("f1", "embedding", time.Now().UTC(), true))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rec.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if _, err := store.Get(ctx, "f1"); err != nil {
		t.Fatalf("expected call to be written after Flush: %v", err)
	}
}

func TestRecorder_BatchSizeTriggersWrite(t *testing.T) {
	store := openTestStore(t)
	rec := NewRecorder(RecorderConfig{
		Store:         store,
		BatchSize:     2,
		FlushInterval: time.Hour,
		Logger:        quietLogger(),
	})
	defer rec.Close()

	now := time.Now().UTC()
	rec.Record(newCall("b1", "generate", now, true))
	rec.Record(newCall("b2", "generate", now, true))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		counts, err := store.CountByEndpoint(context.Background(), QueryFilter{})
		if err == nil && counts["generate"] == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("batch was not written before deadline")
}

func TestRecorder_Nil(t *testing.T) {
	var rec *Recorder
	rec.Record(&Call{ID: "x"})
	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("Flush on nil recorder: %v", err)
	}
	rec.Close()
}

func TestRecorder_NoStore(t *testing.T) {
	rec := NewRecorder(RecorderConfig{Logger: quietLogger()})
	rec.Record(&Call{ID: "x", Endpoint: "generate"})
	rec.Close()
}
