package syncx

import (
	"sync"
	"testing"
)

func TestGuardGetSet(t *testing.T) {
	g := NewGuard(10)

	if g.Get() != 10 {
		t.Errorf("Get() = %d, want 10", g.Get())
	}

	g.Set(20)
	if g.Get() != 20 {
		t.Errorf("Get() = %d, want 20", g.Get())
	}
}

func TestGuardWrite(t *testing.T) {
	g := NewGuard([]string{"a"})

	g.Write(func(v *[]string) {
		*v = append(*v, "b")
	})

	got := g.Get()
	if len(got) != 2 || got[1] != "b" {
		t.Errorf("Get() = %v, want [a b]", got)
	}
}

func TestGuardSwap(t *testing.T) {
	g := NewGuard("old")

	old := g.Swap("new")
	if old != "old" {
		t.Errorf("Swap() returned %q, want %q", old, "old")
	}
	if g.Get() != "new" {
		t.Errorf("Get() = %q, want %q", g.Get(), "new")
	}
}

func TestGuardConcurrent(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Write(func(v *int) { *v++ })
		}()
	}
	wg.Wait()

	if g.Get() != 100 {
		t.Errorf("Get() = %d, want 100", g.Get())
	}
}
