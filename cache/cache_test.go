package cache

import (
	"errors"
	"expvar"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/INLOpen/dictbase/core"
)

func block(index int, size int) *core.DecodedBlock {
	return &core.DecodedBlock{Kind: core.RecordBlock, Index: index, Data: make([]byte, size)}
}

func key(index int) Key {
	return Key{ContainerID: 1, Kind: core.RecordBlock, Index: index}
}

func TestBlockCache_GetOrDecode(t *testing.T) {
	c := New(1024)

	var decodes int
	b, err := c.GetOrDecode(key(0), func() (*core.DecodedBlock, error) {
		decodes++
		return block(0, 100), nil
	})
	if err != nil {
		t.Fatalf("GetOrDecode() returned an unexpected error: %v", err)
	}
	if b == nil || len(b.Data) != 100 {
		t.Fatal("GetOrDecode() returned the wrong block")
	}
	if decodes != 1 {
		t.Errorf("expected 1 decode, got %d", decodes)
	}

	// Second access is a hit and must not decode again.
	_, err = c.GetOrDecode(key(0), func() (*core.DecodedBlock, error) {
		decodes++
		return block(0, 100), nil
	})
	if err != nil {
		t.Fatalf("GetOrDecode() returned an unexpected error: %v", err)
	}
	if decodes != 1 {
		t.Errorf("expected the second access to hit, decodes = %d", decodes)
	}
	if c.Len() != 1 || c.Used() != 100 {
		t.Errorf("Len/Used = %d/%d, want 1/100", c.Len(), c.Used())
	}
}

func TestBlockCache_DecodeError(t *testing.T) {
	c := New(1024)
	wantErr := errors.New("read failed")
	_, err := c.GetOrDecode(key(9), func() (*core.DecodedBlock, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("GetOrDecode() error = %v, want %v", err, wantErr)
	}
	if c.Len() != 0 {
		t.Error("failed decodes must not be cached")
	}
}

func TestBlockCache_LRUEviction(t *testing.T) {
	// Budget for exactly 3 blocks of 100 bytes.
	c := New(300)
	decodes := make(map[int]int)
	get := func(i int) {
		t.Helper()
		_, err := c.GetOrDecode(key(i), func() (*core.DecodedBlock, error) {
			decodes[i]++
			return block(i, 100), nil
		})
		if err != nil {
			t.Fatalf("GetOrDecode(%d) returned an unexpected error: %v", i, err)
		}
	}

	get(1)
	get(2)
	get(3)
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}

	// Touch 1 so 2 becomes the LRU, then insert a 4th block.
	get(1)
	get(4)
	if c.Len() != 3 {
		t.Fatalf("Len() = %d after eviction, want 3", c.Len())
	}

	// 2 was evicted: re-access triggers exactly one re-decode.
	get(2)
	if decodes[2] != 2 {
		t.Errorf("block 2 decoded %d times, want 2", decodes[2])
	}
	// 1 stayed resident.
	get(1)
	if decodes[1] != 1 {
		t.Errorf("block 1 decoded %d times, want 1", decodes[1])
	}
}

func TestBlockCache_OversizedBlockNotRetained(t *testing.T) {
	c := New(100)
	b, err := c.GetOrDecode(key(7), func() (*core.DecodedBlock, error) {
		return block(7, 500), nil
	})
	if err != nil {
		t.Fatalf("GetOrDecode() returned an unexpected error: %v", err)
	}
	if b == nil || len(b.Data) != 500 {
		t.Fatal("oversized block must still be returned to the caller")
	}
	if c.Len() != 0 || c.Used() != 0 {
		t.Errorf("oversized block must not be retained, Len/Used = %d/%d", c.Len(), c.Used())
	}
}

func TestBlockCache_CoalescedDecode(t *testing.T) {
	c := New(1 << 20)
	var decodes atomic.Int64
	start := make(chan struct{})
	release := make(chan struct{})

	const goroutines = 16
	var wg sync.WaitGroup
	results := make([]*core.DecodedBlock, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			b, err := c.GetOrDecode(key(42), func() (*core.DecodedBlock, error) {
				decodes.Add(1)
				<-release // hold all racers in flight
				return block(42, 64), nil
			})
			if err != nil {
				t.Errorf("GetOrDecode() returned an unexpected error: %v", err)
				return
			}
			results[g] = b
		}(g)
	}

	close(start)
	close(release)
	wg.Wait()

	if n := decodes.Load(); n != 1 {
		t.Errorf("concurrent lookups for one block ran %d decodes, want 1", n)
	}
	for g := 1; g < goroutines; g++ {
		if results[g] != results[0] {
			t.Error("coalesced callers should share the published block")
			break
		}
	}
}

func TestBlockCache_Metrics(t *testing.T) {
	c := New(1024)
	hits := new(expvar.Int)
	misses := new(expvar.Int)
	c.SetMetrics(hits, misses)

	get := func(i int) {
		t.Helper()
		_, err := c.GetOrDecode(key(i), func() (*core.DecodedBlock, error) {
			return block(i, 10), nil
		})
		if err != nil {
			t.Fatalf("GetOrDecode(%d) returned an unexpected error: %v", i, err)
		}
	}

	get(1) // miss
	get(1) // hit
	get(2) // miss
	get(1) // hit
	if hits.Value() != 2 || misses.Value() != 2 {
		t.Errorf("hits/misses = %d/%d, want 2/2", hits.Value(), misses.Value())
	}

	c.Clear()
	if hits.Value() != 0 || misses.Value() != 0 {
		t.Errorf("Clear() must reset the counters, got hits=%d misses=%d", hits.Value(), misses.Value())
	}

	// A cache without counters attached must not panic.
	c2 := New(1024)
	c2.SetMetrics(nil, nil)
	_, err := c2.GetOrDecode(key(3), func() (*core.DecodedBlock, error) {
		return block(3, 10), nil
	})
	if err != nil {
		t.Fatalf("GetOrDecode() returned an unexpected error: %v", err)
	}
}

func TestBlockCache_DisabledCapacity(t *testing.T) {
	c := New(0)
	decodes := 0
	for i := 0; i < 2; i++ {
		_, err := c.GetOrDecode(key(1), func() (*core.DecodedBlock, error) {
			decodes++
			return block(1, 10), nil
		})
		if err != nil {
			t.Fatalf("GetOrDecode() returned an unexpected error: %v", err)
		}
	}
	if decodes != 2 {
		t.Errorf("disabled cache should decode per call, got %d decodes", decodes)
	}
	if c.Len() != 0 {
		t.Error("disabled cache must not retain blocks")
	}
}

func TestBlockCache_EvictContainer(t *testing.T) {
	c := New(1 << 20)
	for i := 0; i < 3; i++ {
		cid := uint64(1)
		if i == 2 {
			cid = 2
		}
		_, err := c.GetOrDecode(Key{ContainerID: cid, Kind: core.KeyBlock, Index: i}, func() (*core.DecodedBlock, error) {
			return block(i, 10), nil
		})
		if err != nil {
			t.Fatalf("GetOrDecode() returned an unexpected error: %v", err)
		}
	}
	c.EvictContainer(1)
	if c.Len() != 1 {
		t.Errorf("Len() = %d after EvictContainer, want 1", c.Len())
	}
}
