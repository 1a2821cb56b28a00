package trip

import (
	"context"
	"errors"
	"testing"

	"backend-tanquecheio/internal/shared/geo"
)

func TestMemoryStoreActiveIndex(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	trip := Trip{ID: "t1", UserID: "u1", Status: StatusActive}
	if err := store.Create(ctx, trip); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, Trip{ID: "t2", UserID: "u1", Status: StatusActive}); !errors.Is(err, ErrTripAlreadyActive) {
		t.Fatalf("expected already active, got %v", err)
	}

	active, err := store.ActiveByUser(ctx, "u1")
	if err != nil || active.ID != "t1" {
		t.Fatalf("expected t1 active, got %v %v", active.ID, err)
	}

	trip.Status = StatusCompleted
	if err := store.Save(ctx, trip); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.ActiveByUser(ctx, "u1"); !errors.Is(err, ErrTripNotFound) {
		t.Fatalf("expected no active trip, got %v", err)
	}
	if err := store.Save(ctx, Trip{ID: "nope"}); !errors.Is(err, ErrTripNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	dest := geo.Point{Lat: 1, Lng: 2}
	_ = store.Create(ctx, Trip{ID: "t1", UserID: "u1", Status: StatusActive, Destination: &dest})

	got, _ := store.Get(ctx, "t1")
	got.Destination.Lat = 50

	again, _ := store.Get(ctx, "t1")
	if again.Destination.Lat != 1 {
		t.Fatalf("store must not share pointers with callers")
	}
	dest.Lat = 60
	again, _ = store.Get(ctx, "t1")
	if again.Destination.Lat != 1 {
		t.Fatalf("store must not keep caller pointers")
	}
}
