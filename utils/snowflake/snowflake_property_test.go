package snowflake

import (
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"
)

func TestProperty_IDsUniqueUnderConcurrency(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ids from concurrent callers are unique", prop.ForAll(
		func(goroutines, perGoroutine int) bool {
			g, err := NewGenerator(1)
			if err != nil {
				return false
			}
			ids := make(chan int64, goroutines*perGoroutine)
			var wg sync.WaitGroup
			for range goroutines {
				wg.Go(func() {
					for range perGoroutine {
						id, err := g.NextID()
						if err != nil {
							return
						}
						ids <- id
					}
				})
			}
			wg.Wait()
			close(ids)

			seen := make(map[int64]struct{}, goroutines*perGoroutine)
			for id := range ids {
				if _, dup := seen[id]; dup {
					return false
				}
				seen[id] = struct{}{}
			}
			return len(seen) == goroutines*perGoroutine
		},
		gen.IntRange(1, 16),
		gen.IntRange(10, 200),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_IDsStrictlyIncreaseAndKeepNode(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		node := rapid.Int64Range(0, MaxNode).Draw(t, "node")
		n := rapid.IntRange(1, 500).Draw(t, "n")

		g, err := NewGenerator(node)
		if err != nil {
			t.Fatal(err)
		}
		var prev int64
		for i := 0; i < n; i++ {
			id, err := g.NextID()
			if err != nil {
				t.Fatal(err)
			}
			if id <= prev {
				t.Fatalf("id %d not greater than %d", id, prev)
			}
			if Node(id) != node {
				t.Fatalf("node %d decoded as %d", node, Node(id))
			}
			prev = id
		}
	})
}
