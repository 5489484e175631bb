package record

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/momcare/pregnancy-tracker/internal/platform/kv"
)

func TestPatientRepoKV_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewPatientRepoKV(kv.NewMemoryStore())
	due := time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC)

	p := &Patient{Name: "Amina", DueDate: &due, CurrentWeek: 20}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected id to be assigned")
	}

	got, err := repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Amina" || got.CurrentWeek != 20 || !got.DueDate.Equal(due) {
		t.Errorf("unexpected patient: %+v", got)
	}
	if got.HealthRecords == nil {
		t.Error("expected empty, non-nil record list")
	}

	if err := repo.Create(ctx, &Patient{ID: p.ID, Name: "dup"}); err == nil {
		t.Error("expected duplicate id to be rejected")
	}
}

func TestPatientRepoKV_GetMissing(t *testing.T) {
	repo := NewPatientRepoKV(kv.NewMemoryStore())
	if _, err := repo.Get(context.Background(), "nobody"); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
	if err := repo.SaveRecords(context.Background(), "nobody", nil); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestPatientRepoKV_RoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	repo := NewPatientRepoKV(store)
	if err := repo.Create(ctx, &Patient{ID: "p1", Name: "Amina"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	records := sampleRecords()
	if err := repo.SaveRecords(ctx, "p1", records); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, _, err := Open(ctx, NewPatientRepoKV(store), "p1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !reflect.DeepEqual(reloaded.All(), records) {
		t.Errorf("reloaded records differ:\n got  %+v\n want %+v", reloaded.All(), records)
	}
}

func TestPatientRepoKV_SaveRecordsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	repo := NewPatientRepoKV(store)
	_ = repo.Create(ctx, &Patient{ID: "p1", Name: "Amina"})
	_ = repo.Create(ctx, &Patient{ID: "p2", Name: "Beatriz"})

	records := sampleRecords()
	if err := repo.SaveRecords(ctx, "p1", records); err != nil {
		t.Fatalf("save: %v", err)
	}
	first, _ := store.Get(ctx, RegistryKey)

	if err := repo.SaveRecords(ctx, "p1", records); err != nil {
		t.Fatalf("save again: %v", err)
	}
	second, _ := store.Get(ctx, RegistryKey)

	if !bytes.Equal(first, second) {
		t.Errorf("persisted state changed on identical save:\n%s\n%s", first, second)
	}
	p, _ := repo.Get(ctx, "p1")
	if len(p.HealthRecords) != len(records) {
		t.Errorf("expected %d records, got %d", len(records), len(p.HealthRecords))
	}
	other, _ := repo.Get(ctx, "p2")
	if len(other.HealthRecords) != 0 {
		t.Errorf("expected other patient untouched, got %d records", len(other.HealthRecords))
	}
}

func TestPatientRepoKV_CorruptRegistry(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	_ = store.Set(ctx, RegistryKey, []byte(`{not json`))
	repo := NewPatientRepoKV(store)
	if _, err := repo.List(ctx); err == nil {
		t.Fatal("expected decode error")
	}
}
