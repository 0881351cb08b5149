package realtime

import "testing"

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	key := GroupChannel(1)
	a := newTestConn("a")
	b := newTestConn("b")

	if !r.Add(key, a) {
		t.Fatal("first add reported as duplicate")
	}
	if r.Add(key, a) {
		t.Fatal("duplicate add reported as new")
	}
	r.Add(key, b)

	if n := r.Count(key); n != 2 {
		t.Fatalf("expected 2 connections, got %d", n)
	}

	if empty := r.Remove(key, a); empty {
		t.Fatal("set reported empty with a connection remaining")
	}
	if empty := r.Remove(key, b); !empty {
		t.Fatal("set not reported empty after last removal")
	}

	// Removing from an unknown key is a no-op and still reports empty.
	if empty := r.Remove(GroupChannel(99), a); !empty {
		t.Fatal("unknown key not reported empty")
	}
}

func TestRegistrySnapshotIsolatedFromMutation(t *testing.T) {
	r := NewRegistry()
	key := UserChannel(42)
	a := newTestConn("a")
	b := newTestConn("b")
	r.Add(key, a)
	r.Add(key, b)

	snap := r.Snapshot(key)
	if len(snap) != 2 {
		t.Fatalf("expected snapshot of 2, got %d", len(snap))
	}

	r.Remove(key, a)
	r.Remove(key, b)
	if len(snap) != 2 {
		t.Fatal("snapshot mutated by removal")
	}
	if got := r.Snapshot(key); got != nil {
		t.Fatalf("expected nil snapshot for empty key, got %d conns", len(got))
	}
}

func TestRegistryKeysAreIndependent(t *testing.T) {
	r := NewRegistry()
	a := newTestConn("a")

	r.Add(GroupChannel(1), a)
	r.Add(UserChannel(1), a)

	if empty := r.Remove(GroupChannel(1), a); !empty {
		t.Fatal("group key not empty after removal")
	}
	if n := r.Count(UserChannel(1)); n != 1 {
		t.Fatalf("user key affected by group removal, count %d", n)
	}
}
