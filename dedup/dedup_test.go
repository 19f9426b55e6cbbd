package dedup

import "testing"

func TestSeenOrAddDeduplicates(t *testing.T) {
	f, err := New(1000, 0.01)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	key := []byte("block-hash-1")
	if f.SeenOrAdd(key) {
		t.Fatalf("expected first occurrence to report unseen")
	}
	if !f.SeenOrAdd(key) {
		t.Fatalf("expected second occurrence to report seen")
	}
}

func TestSeenWithoutAddDoesNotMutate(t *testing.T) {
	f, err := New(1000, 0.01)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	key := []byte("heartbeat-1")
	if f.Seen(key) {
		t.Fatalf("expected unseen key to report false")
	}
	if f.Seen(key) {
		t.Fatalf("expected Seen to not mutate state")
	}
	f.Add(key)
	if !f.Seen(key) {
		t.Fatalf("expected key to be seen after explicit Add")
	}
}

func TestDistinctKeysAreDistinguished(t *testing.T) {
	f, err := New(1000, 0.001)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f.Add([]byte("a"))
	if f.Seen([]byte("b")) {
		t.Fatalf("expected distinct key to not collide at this scale")
	}
}

func TestRotationAfterCapacity(t *testing.T) {
	f, err := New(4, 0.1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 10; i++ {
		f.Add([]byte{byte(i)})
	}
	// Rotation must not panic and the filter must remain usable.
	f.Add([]byte("after-rotation"))
	if !f.Seen([]byte("after-rotation")) {
		t.Fatalf("expected post-rotation insert to be observed")
	}
}
