package cache

import (
	"fmt"
	"sync"
	"testing"
)

// counter returns a compile func that records how often each source was
// compiled.
func counter() (func(string) (int, error), map[string]int) {
	var mu sync.Mutex
	calls := make(map[string]int)
	return func(src string) (int, error) {
		mu.Lock()
		calls[src]++
		mu.Unlock()
		if src == "" {
			return 0, fmt.Errorf("empty")
		}
		return len(src), nil
	}, calls
}

func TestCompiled(t *testing.T) {
	compile, calls := counter()
	c := NewCompiled(4, compile)

	for i := 0; i < 3; i++ {
		if v, err := c.Get("abc"); err != nil || v != 3 {
			t.Fatalf("Get(abc) = %d, %v", v, err)
		}
	}
	if calls["abc"] != 1 {
		t.Errorf("compile(abc) called %d times; want 1", calls["abc"])
	}

	if _, err := c.Get(""); err == nil {
		t.Error("Get(\"\") should fail")
	}
	if _, err := c.Get(""); err == nil {
		t.Error("Get(\"\") should fail again")
	}
	if calls[""] != 2 {
		t.Errorf("failed compiles must not be cached: %d calls", calls[""])
	}
}

func TestCompiledEviction(t *testing.T) {
	compile, calls := counter()
	c := NewCompiled(2, compile)

	c.Get("a")
	c.Get("b")
	c.Get("a")  // "b" is now least recently used
	c.Get("cc") // evicts "b"

	tests := []struct {
		src   string
		calls int
	}{
		{"a", 1},
		{"cc", 1},
		{"b", 2},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if v, err := c.Get(tt.src); err != nil || v != len(tt.src) {
				t.Fatalf("Get(%s) = %d, %v", tt.src, v, err)
			}
			if got := calls[tt.src]; got != tt.calls {
				t.Errorf("compile(%s) called %d times; want %d", tt.src, got, tt.calls)
			}
		})
	}
}

func TestCompiledUnlimited(t *testing.T) {
	compile, calls := counter()
	c := NewCompiled(-1, compile)
	for i := 0; i < 100; i++ {
		c.Get(fmt.Sprint(i))
	}
	for i := 0; i < 100; i++ {
		c.Get(fmt.Sprint(i))
	}
	for src, n := range calls {
		if n != 1 {
			t.Errorf("compile(%s) called %d times; want 1", src, n)
		}
	}
}

func TestCompiledConcurrent(t *testing.T) {
	compile, _ := counter()
	c := NewCompiled(16, compile)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				src := fmt.Sprint(i % 32)
				if v, err := c.Get(src); err != nil || v != len(src) {
					t.Errorf("Get(%s) = %d, %v", src, v, err)
				}
			}
		}()
	}
	wg.Wait()
}
