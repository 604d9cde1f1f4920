package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/genledger/internal/digest"
	"github.com/jmerrifield20/genledger/internal/ledger"
)

var ctx = context.Background()

func mustDigest(t *testing.T, payload map[string]any) string {
	t.Helper()
	d, err := digest.Compute(payload)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// runStoreTests runs the behavior every Store must share. newStore must
// return an empty store.
func runStoreTests(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	for _, tc := range []struct {
		name string
		fn   func(t *testing.T, s ledger.Store)
	}{
		{"empty", testEmpty},
		{"record then lookup", testRecordThenLookup},
		{"lookup not found", testLookupNotFound},
		{"lookup case insensitive", testLookupCaseInsensitive},
		{"duplicate overwrites", testDuplicateOverwrites},
		{"rejects empty fields", testRejectsEmptyFields},
		{"custom kind", testCustomKind},
		{"lookup returns copy", testLookupReturnsCopy},
		{"concurrent access", testConcurrentAccess},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func testEmpty(t *testing.T, s ledger.Store) {

	n, err := s.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected empty store, got %d entries", n)
	}
}

func testRecordThenLookup(t *testing.T, s ledger.Store) {
	d := mustDigest(t, map[string]any{"summary": "hello"})

	before := time.Now().UTC().Truncate(time.Microsecond)
	rec, err := s.Record(ctx, d, ledger.KindSummarization, `{"summary":"hello"}`)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Lookup(ctx, d)
	if err != nil {
		t.Fatalf("Lookup after Record: %v", err)
	}
	if got.Kind != ledger.KindSummarization {
		t.Errorf("kind: got %q, want %q", got.Kind, ledger.KindSummarization)
	}
	if got.RecordedAt.Before(before) {
		t.Errorf("RecordedAt %v is earlier than the Record call (%v)", got.RecordedAt, before)
	}
	if !got.RecordedAt.Equal(rec.RecordedAt) {
		t.Errorf("Lookup RecordedAt %v differs from Record result %v", got.RecordedAt, rec.RecordedAt)
	}
	if got.Preview != `{"summary":"hello"}` {
		t.Errorf("preview: got %q", got.Preview)
	}
}

func testLookupNotFound(t *testing.T, s ledger.Store) {
	_, _ = s.Record(ctx, mustDigest(t, map[string]any{"a": 1}), ledger.KindQA, "")

	for _, d := range []string{
		mustDigest(t, map[string]any{"a": 2}),
		strings.Repeat("0", digest.Size),
		"not-a-digest",
		"",
	} {
		e, err := s.Lookup(ctx, d)
		if !errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("Lookup(%q): expected ErrNotFound, got entry=%v err=%v", d, e, err)
		}
	}
}

func testLookupCaseInsensitive(t *testing.T, s ledger.Store) {
	d := mustDigest(t, map[string]any{"topic": "go"})
	_, _ = s.Record(ctx, d, ledger.KindLearningPath, "")

	if _, err := s.Lookup(ctx, strings.ToUpper(d)); err != nil {
		t.Errorf("upper-case lookup failed: %v", err)
	}
}

func testDuplicateOverwrites(t *testing.T, s ledger.Store) {
	d := mustDigest(t, map[string]any{"answer": "x"})

	first, _ := s.Record(ctx, d, ledger.KindQA, "first")
	time.Sleep(time.Millisecond)
	second, err := s.Record(ctx, d, ledger.KindQA, "second")
	if err != nil {
		t.Fatal(err)
	}

	got, _ := s.Lookup(ctx, d)
	if got.Preview != "second" {
		t.Errorf("expected last write to win, got preview %q", got.Preview)
	}
	if got.RecordedAt.Before(first.RecordedAt) || !got.RecordedAt.Equal(second.RecordedAt) {
		t.Errorf("expected newer timestamp, got %v (first %v, second %v)", got.RecordedAt, first.RecordedAt, second.RecordedAt)
	}
	if n, _ := s.Len(ctx); n != 1 {
		t.Errorf("duplicate digest should not grow the ledger, got %d entries", n)
	}
}

func testRejectsEmptyFields(t *testing.T, s ledger.Store) {
	if _, err := s.Record(ctx, "", ledger.KindQA, ""); err == nil {
		t.Error("expected error for empty digest")
	}
	if _, err := s.Record(ctx, mustDigest(t, map[string]any{"a": 1}), "", ""); err == nil {
		t.Error("expected error for empty kind")
	}
}

func testCustomKind(t *testing.T, s ledger.Store) {
	d := mustDigest(t, map[string]any{"x": "y"})
	if _, err := s.Record(ctx, d, ledger.Kind("translation"), ""); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Lookup(ctx, d)
	if got.Kind != "translation" {
		t.Errorf("kind: got %q", got.Kind)
	}
}

func testLookupReturnsCopy(t *testing.T, s ledger.Store) {
	d := mustDigest(t, map[string]any{"x": "y"})
	_, _ = s.Record(ctx, d, ledger.KindQA, "original")

	e, _ := s.Lookup(ctx, d)
	e.Preview = "mutated"

	again, _ := s.Lookup(ctx, d)
	if again.Preview != "original" {
		t.Errorf("stored entry was mutated through a returned pointer: %q", again.Preview)
	}
}

func testConcurrentAccess(t *testing.T, s ledger.Store) {
	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				d, err := digest.Compute(map[string]any{"w": w, "i": i})
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := s.Record(ctx, d, ledger.KindSummarization, fmt.Sprintf("%d/%d", w, i)); err != nil {
					t.Error(err)
					return
				}
				if _, err := s.Lookup(ctx, d); err != nil {
					t.Errorf("lookup of just-recorded digest failed: %v", err)
					return
				}
				_, _ = s.Len(ctx)
			}
		}(w)
	}
	wg.Wait()

	n, _ := s.Len(ctx)
	if n != workers*perWorker {
		t.Errorf("expected %d entries, got %d", workers*perWorker, n)
	}
}
