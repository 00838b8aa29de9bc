package signaling

import (
	"errors"
	"testing"
)

type fakeConn struct {
	sent []Message
	err  error
}

func (f *fakeConn) Send(msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

// sequence returns a generator that yields ids in order.
func sequence(ids ...string) IDGenerator {
	i := 0
	return func() (string, error) {
		id := ids[i%len(ids)]
		i++
		return id, nil
	}
}

func TestTokenGenerator(t *testing.T) {
	gen := TokenGenerator(12)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := gen()
		if err != nil {
			t.Fatalf("gen: %v", err)
		}
		if len(id) != 12 {
			t.Fatalf("len(%q) = %d, want 12", id, len(id))
		}
		for _, r := range id {
			if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z') {
				t.Fatalf("unexpected rune %q in %q", r, id)
			}
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestRegistryRegenerateOnCollision(t *testing.T) {
	reg := NewRegistry(sequence("p1", "p1", "p1", "p2"))

	a, err := reg.Register(&fakeConn{})
	if err != nil || a != "p1" {
		t.Fatalf("first Register = %q, %v", a, err)
	}

	b, err := reg.Register(&fakeConn{})
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if b != "p2" {
		t.Fatalf("second Register = %q, want p2 after collisions", b)
	}
	if reg.Len() != 2 {
		t.Fatalf("Len = %d, want 2", reg.Len())
	}
}

func TestRegistryExhausted(t *testing.T) {
	reg := NewRegistry(sequence("same"))
	if _, err := reg.Register(&fakeConn{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Register(&fakeConn{}); !errors.Is(err, ErrRegistryExhausted) {
		t.Fatalf("Register err = %v, want ErrRegistryExhausted", err)
	}
}

func TestRegistryReuseAfterRemove(t *testing.T) {
	reg := NewRegistry(sequence("p1"))
	first := &fakeConn{}
	id, _ := reg.Register(first)
	reg.Remove(id)

	if _, ok := reg.Lookup(id); ok {
		t.Fatal("Lookup found removed peer")
	}

	second := &fakeConn{}
	id2, err := reg.Register(second)
	if err != nil || id2 != id {
		t.Fatalf("Register after Remove = %q, %v", id2, err)
	}
	if got, _ := reg.Lookup(id2); got != second {
		t.Fatal("Lookup returned stale connection")
	}
}

func TestRegistryUniqueUnderLoad(t *testing.T) {
	// Single-character tokens (36 possible values) force frequent collisions.
	reg := NewRegistry(TokenGenerator(1))
	ids := make(map[string]bool)
	for {
		id, err := reg.Register(&fakeConn{})
		if errors.Is(err, ErrRegistryExhausted) {
			break
		}
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if ids[id] {
			t.Fatalf("id %q handed out twice", id)
		}
		ids[id] = true
		if len(ids) > 36 {
			t.Fatalf("more ids than the space allows: %d", len(ids))
		}
	}
	if reg.Len() != len(ids) {
		t.Fatalf("Len = %d, want %d", reg.Len(), len(ids))
	}
}
