package store

import (
	"testing"
	"time"
)

func TestSessions_CreateFinish(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	ts := &TrainingSession{}
	if err := repo.Create(ts); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ts.ID == "" {
		t.Fatal("Create() should assign an ID")
	}
	if ts.StartedAt.IsZero() {
		t.Error("Create() should set StartedAt")
	}

	got, err := repo.GetByID(ts.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.FinishedAt != nil {
		t.Error("new session should not be finished")
	}

	if err := repo.Finish(ts.ID, 100, 98, 101); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	got, err = repo.GetByID(ts.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.FinishedAt == nil {
		t.Fatal("finished session should have FinishedAt")
	}
	if got.NoActionSamples != 100 || got.DownSamples != 98 || got.UpSamples != 101 {
		t.Errorf("counts = %d/%d/%d, want 100/98/101", got.NoActionSamples, got.DownSamples, got.UpSamples)
	}
}

func TestSessions_NotFound(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	if _, err := repo.GetByID("nope"); err != ErrNotFound {
		t.Errorf("GetByID(): expected ErrNotFound, got: %v", err)
	}
	if err := repo.Finish("nope", 1, 1, 1); err != ErrNotFound {
		t.Errorf("Finish(): expected ErrNotFound, got: %v", err)
	}
}

func TestSessions_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		ts := &TrainingSession{StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Create(ts); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	all, err := repo.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List(0) returned %d sessions, want 3", len(all))
	}
	if !all[0].StartedAt.After(all[2].StartedAt) {
		t.Error("List() should return newest first")
	}

	limited, err := repo.List(2)
	if err != nil {
		t.Fatalf("List(2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(2) returned %d sessions, want 2", len(limited))
	}
}
