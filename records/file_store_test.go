package records

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

var sample = Observation{PH: 7.2, TDS: 300, Turbidity: 1.2, Temperature: 27, Prediction: "Good"}

func TestFileStoreFreshIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "data.json"))
	got, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestFileStoreAppendOrder(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "data.json"))

	var want []Observation
	for i := 0; i < 5; i++ {
		obs := Observation{PH: 6 + float64(i)/10, TDS: float64(100 * i), Turbidity: 0.5, Temperature: 20, Prediction: fmt.Sprintf("L%d", i)}
		if err := store.Append(ctx, obs); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		want = append(want, obs)
	}

	got, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	again, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	for i := range got {
		if again[i] != got[i] {
			t.Fatalf("LoadAll not idempotent at %d", i)
		}
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")
	if err := NewFileStore(path).Append(ctx, sample); err != nil {
		t.Fatalf("append: %v", err)
	}
	// a fresh instance sees what the first one wrote
	got, err := NewFileStore(path).LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[len(got)-1] != sample {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestFileStoreWritesReadableJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := NewFileStore(path).Append(context.Background(), sample); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "[\n    {\n        \"ph\": 7.2,\n        \"tds\": 300,\n        \"turbidity\": 1.2,\n        \"temperature\": 27,\n        \"prediction\": \"Good\"\n    }\n]"
	if string(data) != want {
		t.Fatalf("unexpected file content:\n%s", data)
	}
}

func TestFileStoreCorruptionDiscard(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(path, WithPolicy(PolicyDiscard))

	if _, err := store.LoadAll(ctx); !errors.Is(err, ErrStoreCorrupt) {
		t.Fatalf("expected ErrStoreCorrupt, got %v", err)
	}
	if err := store.Append(ctx, sample); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0] != sample {
		t.Fatalf("expected only the new record, got %+v", got)
	}

	matches, _ := filepath.Glob(path + ".corrupt-*")
	if len(matches) != 0 {
		t.Fatalf("discard policy left quarantine files: %v", matches)
	}
}

func TestFileStoreCorruptionQuarantine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte("[1, 2, oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(path)

	if err := store.Append(ctx, sample); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0] != sample {
		t.Fatalf("expected only the new record, got %+v", got)
	}

	matches, err := filepath.Glob(path + ".corrupt-*")
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one quarantine file, got %v (%v)", matches, err)
	}
	kept, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(kept) != "[1, 2, oops" {
		t.Fatalf("quarantine content = %q", kept)
	}
}

func TestFileStoreEmptyFileIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).LoadAll(context.Background()); !errors.Is(err, ErrStoreCorrupt) {
		t.Fatalf("expected ErrStoreCorrupt, got %v", err)
	}
}

func TestFileStoreNullIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte("null"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := NewFileStore(path).LoadAll(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty log, got %v, %v", got, err)
	}
}

func TestFileStoreUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// the parent of the log path is a regular file, so nothing can be created there
	store := NewFileStore(filepath.Join(blocker, "data.json"))
	err := store.Append(context.Background(), sample)
	if !errors.Is(err, ErrStoreUnwritable) {
		t.Fatalf("expected ErrStoreUnwritable, got %v", err)
	}
}

func TestFileStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "data.json"))

	const writers, perWriter = 8, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				obs := Observation{PH: float64(w), TDS: float64(i), Prediction: "Good"}
				if err := store.Append(ctx, obs); err != nil {
					t.Errorf("writer %d append %d: %v", w, i, err)
				}
			}
		}(w)
	}
	wg.Wait()

	got, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != writers*perWriter {
		t.Fatalf("expected %d records, got %d", writers*perWriter, len(got))
	}
	// each writer's own records stay in call order
	next := make(map[float64]float64)
	for _, obs := range got {
		if obs.TDS != next[obs.PH] {
			t.Fatalf("writer %v: expected record %v, got %v", obs.PH, next[obs.PH], obs.TDS)
		}
		next[obs.PH]++
	}
}

func TestFileStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewFileStore(filepath.Join(t.TempDir(), "data.json"))
	err := store.Append(ctx, sample)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrStoreUnwritable) {
		t.Fatalf("expected ErrStoreUnwritable wrapping context.Canceled, got %v", err)
	}
}

var malformedLogs = map[string]string{
	"empty object":     `[{}]`,
	"null element":     `[null]`,
	"foreign object":   `[{"sensor":"x","reading":3}]`,
	"missing field":    `[{"ph":7.2,"tds":300,"turbidity":1.2,"prediction":"Good"}]`,
	"extra field":      `[{"ph":7.2,"tds":300,"turbidity":1.2,"temperature":27,"prediction":"Good","note":"x"}]`,
	"number element":   `[1]`,
	"object not array": `{"ph":7.2}`,
	"trailing data":    `[] []`,
}

func TestFileStoreLoadAllRejectsMalformedRecords(t *testing.T) {
	for name, content := range malformedLogs {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data.json")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := NewFileStore(path).LoadAll(context.Background())
			if !errors.Is(err, ErrStoreCorrupt) {
				t.Fatalf("expected ErrStoreCorrupt, got %+v, %v", got, err)
			}
		})
	}
}

func TestFileStoreAppendRecoversMalformedRecords(t *testing.T) {
	for name, content := range malformedLogs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "data.json")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			store := NewFileStore(path)
			if err := store.Append(ctx, sample); err != nil {
				t.Fatalf("append: %v", err)
			}
			got, err := store.LoadAll(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(got) != 1 || got[0] != sample {
				t.Fatalf("expected only the new record, got %+v", got)
			}
			if matches, _ := filepath.Glob(path + ".corrupt-*"); len(matches) != 1 {
				t.Fatalf("expected one quarantine file, got %v", matches)
			}
		})
	}
}

func TestFileStoreKeepsZeroValuedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	content := `[{"ph":0,"tds":0,"turbidity":0,"temperature":0,"prediction":""}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := NewFileStore(path).LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0] != (Observation{}) {
		t.Fatalf("unexpected records %+v", got)
	}
}
