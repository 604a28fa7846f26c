package library

import (
	"errors"
	"sync"
	"testing"
)

// conflicts runs op concurrently n times and returns how many calls
// succeeded and how many failed with a version conflict. Any other error
// fails the test.
func conflicts(t *testing.T, n int, op func(i int) error) (ok, conflict int) {
	t.Helper()
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = op(i)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		var vce *VersionConflictError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &vce):
			conflict++
		default:
			t.Errorf("call %d: %v", i, err)
		}
	}
	return ok, conflict
}

// readConsistently lists the items and the changelog until stop is closed,
// checking that each read sees the objects and tombstones of its version.
func readConsistently(t *testing.T, s *Service, base int64, items int, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		res, err := s.List(testLib, Item, &Query{})
		if err != nil {
			t.Error(err)
			return
		}
		if deleted := int(res.Version - base); len(res.Objects) != items-deleted {
			t.Errorf("version %d lists %d items", res.Version, len(res.Objects))
			return
		}
		tomb, v := s.Deleted(testLib, base)
		if len(tomb.Items) != int(v-base) {
			t.Errorf("version %d has %d tombstones", v, len(tomb.Items))
			return
		}
	}
}

func TestConcurrentDelete(t *testing.T) {
	s := newTestService(t)
	const n = 20
	keys := create(t, s, Item, n)
	v := s.Version(testLib)

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for range 4 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			readConsistently(t, s, v, n, stop)
		}()
	}
	ok, conflict := conflicts(t, n, func(i int) error {
		_, err := s.DeleteOne(testLib, Item, keys[i], v)
		return err
	})
	close(stop)
	readers.Wait()

	if ok != 1 || conflict != n-1 {
		t.Errorf("ok = %d, conflict = %d", ok, conflict)
	}
	if got := s.Version(testLib); got != v+1 {
		t.Errorf("Version() = %d, want %d", got, v+1)
	}
	if got := listKeys(t, s, Item, &Query{}); len(got) != n-1 {
		t.Errorf("%d items left, want %d", len(got), n-1)
	}
}

func TestConcurrentConditionalWrite(t *testing.T) {
	s := newTestService(t)
	create(t, s, Collection, 1)
	v := s.Version(testLib)
	const n = 20
	ok, conflict := conflicts(t, n, func(int) error {
		_, err := s.Write(testLib, Collection, []byte(`[{"name":"Concurrent"}]`), v)
		return err
	})
	if ok != 1 || conflict != n-1 {
		t.Errorf("ok = %d, conflict = %d", ok, conflict)
	}
	if got := s.Version(testLib); got != v+1 {
		t.Errorf("Version() = %d, want %d", got, v+1)
	}
	if got := listKeys(t, s, Collection, &Query{}); len(got) != 2 {
		t.Errorf("%d collections, want 2", len(got))
	}
}

func TestConcurrentLibrariesIndependent(t *testing.T) {
	s := newTestService(t)
	const n = 10
	ok, conflict := conflicts(t, n, func(i int) error {
		_, err := s.Write(UserRef(int64(i+1)), Item, []byte(`[`+sample(Item)+`]`), 0)
		return err
	})
	if ok != n || conflict != 0 {
		t.Errorf("ok = %d, conflict = %d", ok, conflict)
	}
	for i := range n {
		if got := s.Version(UserRef(int64(i + 1))); got != 1 {
			t.Errorf("library %d at version %d", i+1, got)
		}
	}
}
