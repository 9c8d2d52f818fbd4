package state

import (
	"strconv"
	"sync"
	"testing"

	"github.com/waystation/wayside/internal/way"
)

func TestCommitDiscardsStaleVersion(t *testing.T) {
	s := New()
	first := s.Begin()
	second := s.Begin()

	if !s.Commit(second, way.Waystation{Name: "fresh"}) {
		t.Fatalf("expected fresh commit to apply")
	}
	if s.Commit(first, way.Waystation{Name: "stale"}) {
		t.Fatalf("stale commit must be discarded")
	}
	ws, version, loaded := s.Get()
	if ws.Name != "fresh" || version != second || !loaded {
		t.Fatalf("unexpected state: %+v v=%d loaded=%v", ws, version, loaded)
	}
}

func TestCommitSameVersionOnce(t *testing.T) {
	s := New()
	v := s.Begin()
	if !s.Commit(v, way.Waystation{Name: "a"}) {
		t.Fatalf("first commit should apply")
	}
	if s.Commit(v, way.Waystation{Name: "b"}) {
		t.Fatalf("second commit under the same version must be dropped")
	}
}

func TestEmptyStore(t *testing.T) {
	s := New()
	if _, v, loaded := s.Get(); loaded || v != 0 {
		t.Fatalf("expected empty store, got v=%d loaded=%v", v, loaded)
	}
}

func TestSetIsNewest(t *testing.T) {
	s := New()
	pending := s.Begin()
	s.Set(way.Waystation{Name: "set"})
	if s.Commit(pending, way.Waystation{Name: "late"}) {
		t.Fatalf("commit issued before Set must lose")
	}
	if ws, _, _ := s.Get(); ws.Name != "set" {
		t.Fatalf("unexpected name %q", ws.Name)
	}
}

func TestConcurrentCommitsKeepHighestVersion(t *testing.T) {
	s := New()
	versions := make([]uint64, 64)
	for i := range versions {
		versions[i] = s.Begin()
	}
	var wg sync.WaitGroup
	for i := len(versions) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			s.Commit(v, way.Waystation{ID: way.ID(strconv.FormatUint(v, 10))})
		}(versions[i])
	}
	wg.Wait()
	if got := s.Version(); got != versions[len(versions)-1] {
		t.Fatalf("version = %d, want %d", got, versions[len(versions)-1])
	}
}
