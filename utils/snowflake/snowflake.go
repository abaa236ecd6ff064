// Package snowflake issues the 63-bit message ids. Ids from one node grow
// strictly, so ordering messages by id is ordering them by creation.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// Epoch is 2025-01-01T00:00:00Z in milliseconds.
	Epoch int64 = 1735689600000

	nodeBits     = 10
	sequenceBits = 12

	MaxNode      = -1 ^ (-1 << nodeBits)
	sequenceMask = -1 ^ (-1 << sequenceBits)
	nodeShift    = sequenceBits
	timeShift    = sequenceBits + nodeBits

	// maxDrift is how far the wall clock may step back before NextID gives up.
	maxDrift = 50 * time.Millisecond
)

var (
	ErrInvalidNode         = errors.New("snowflake: node id out of range")
	ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards")
)

type Generator struct {
	mu       sync.Mutex
	node     int64
	sequence int64
	last     int64
	now      func() int64
}

func NewGenerator(node int64) (*Generator, error) {
	if node < 0 || node > MaxNode {
		return nil, ErrInvalidNode
	}
	return &Generator{
		node: node,
		now:  func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// NextID returns the next id. A small backwards clock step is absorbed by
// waiting it out; a larger one fails.
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.last {
		if time.Duration(g.last-ts)*time.Millisecond > maxDrift {
			return 0, ErrClockMovedBackwards
		}
		ts = g.waitUntil(g.last)
	}

	if ts == g.last {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			ts = g.waitUntil(g.last + 1)
		}
	} else {
		g.sequence = 0
	}
	g.last = ts

	return (ts-Epoch)<<timeShift | g.node<<nodeShift | g.sequence, nil
}

func (g *Generator) waitUntil(ms int64) int64 {
	ts := g.now()
	for ts < ms {
		time.Sleep(100 * time.Microsecond)
		ts = g.now()
	}
	return ts
}

// Time returns the creation instant encoded in id.
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + Epoch)
}

// Node returns the generator node encoded in id.
func Node(id int64) int64 {
	return (id >> nodeShift) & MaxNode
}
