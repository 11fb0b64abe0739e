package storage

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestPutAndMatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := CacheEntry{
		Key:    "http://localhost:5173/trends",
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/html"}},
		Body:   []byte("<html>trends</html>"),
	}
	if err := s.PutAll(ctx, "pulse-v1", []CacheEntry{e}); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	got, ok, err := s.Match(ctx, e.Key)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !ok {
		t.Fatal("Match: expected a hit")
	}
	if got.Generation != "pulse-v1" {
		t.Errorf("Generation = %q, want pulse-v1", got.Generation)
	}
	if got.Status != http.StatusOK {
		t.Errorf("Status = %d", got.Status)
	}
	if got.Header.Get("Content-Type") != "text/html" {
		t.Errorf("Content-Type = %q", got.Header.Get("Content-Type"))
	}
	if string(got.Body) != "<html>trends</html>" {
		t.Errorf("Body = %q", got.Body)
	}
	if got.StoredAt.IsZero() {
		t.Error("StoredAt not set")
	}
}

func TestMatch_Miss(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Match(context.Background(), "http://localhost/nope")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if ok {
		t.Error("expected a miss")
	}
}

func TestPut_Overwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	key := "http://localhost/"
	if err := s.PutAll(ctx, "pulse-v1", []CacheEntry{{Key: key, Status: 200, Body: []byte("old")}}); err != nil {
		t.Fatalf("Put old: %v", err)
	}
	if err := s.Put(ctx, "pulse-v1", CacheEntry{Key: key, Status: 200, Body: []byte("new")}); err != nil {
		t.Fatalf("Put new: %v", err)
	}

	got, _, err := s.Match(ctx, key)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if string(got.Body) != "new" {
		t.Errorf("Body = %q, want new", got.Body)
	}
}

func TestMatch_OldestGenerationFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	key := "http://localhost/history"
	if err := s.PutAll(ctx, "v1", []CacheEntry{{Key: key, Status: 200, Body: []byte("v1")}}); err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	if err := s.PutAll(ctx, "v2", []CacheEntry{{Key: key, Status: 200, Body: []byte("v2")}}); err != nil {
		t.Fatalf("Put v2: %v", err)
	}

	got, _, err := s.Match(ctx, key)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got.Generation != "v1" {
		t.Errorf("Generation = %q, want v1", got.Generation)
	}

	names, err := s.Generations(ctx)
	if err != nil {
		t.Fatalf("Generations: %v", err)
	}
	if len(names) != 2 || names[0] != "v1" || names[1] != "v2" {
		t.Errorf("Generations = %v, want [v1 v2]", names)
	}
}

func TestDeleteGeneration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	key := "http://localhost/settings"
	if err := s.PutAll(ctx, "v1", []CacheEntry{{Key: key, Status: 200, Body: []byte("v1")}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	existed, err := s.DeleteGeneration(ctx, "v1")
	if err != nil {
		t.Fatalf("DeleteGeneration: %v", err)
	}
	if !existed {
		t.Error("DeleteGeneration reported missing generation")
	}
	if _, ok, _ := s.Match(ctx, key); ok {
		t.Error("entry still retrievable after its generation was deleted")
	}

	existed, err = s.DeleteGeneration(ctx, "v1")
	if err != nil {
		t.Fatalf("DeleteGeneration again: %v", err)
	}
	if existed {
		t.Error("second delete should report absent")
	}
}

func TestPutAll_EmptyBatchCreatesGeneration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutAll(ctx, "pulse-v2", nil); err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	names, err := s.Generations(ctx)
	if err != nil {
		t.Fatalf("Generations: %v", err)
	}
	if len(names) != 1 || names[0] != "pulse-v2" {
		t.Errorf("Generations = %v", names)
	}
}

func TestPut_MissingGenerationIsNotCreated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	key := "http://localhost/trends"
	if err := s.PutAll(ctx, "v1", nil); err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if _, err := s.DeleteGeneration(ctx, "v1"); err != nil {
		t.Fatalf("DeleteGeneration: %v", err)
	}

	err := s.Put(ctx, "v1", CacheEntry{Key: key, Status: 200, Body: []byte("late")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Put into deleted generation: err = %v, want ErrNotFound", err)
	}
	names, err := s.Generations(ctx)
	if err != nil {
		t.Fatalf("Generations: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("Generations = %v, want none", names)
	}
	if _, ok, _ := s.Match(ctx, key); ok {
		t.Error("late entry is retrievable")
	}
}
