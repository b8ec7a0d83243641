package broadcaster

import (
	"sync"
	"time"
)

// Position is where the broadcast is: which catalog entry is on air and how
// many of its bytes have been published.
type Position struct {
	Index     int       `json:"index"`
	Track     string    `json:"track"`
	StartedAt time.Time `json:"started_at"`
	Bytes     int64     `json:"bytes"`
}

// Clock is the authoritative broadcast position. Only the loop writes it;
// joining listeners read it.
type Clock struct {
	mu  sync.RWMutex
	pos Position
	tee *Tee
}

func NewClock() *Clock {
	return &Clock{}
}

func (c *Clock) Position() Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pos
}

// Live returns the position together with the tee publishing it. The tee is
// nil until the first track starts.
func (c *Clock) Live() (Position, *Tee) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pos, c.tee
}

func (c *Clock) start(index int, track string, tee *Tee) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pos = Position{
		Index:     index,
		Track:     track,
		StartedAt: time.Now(),
	}
	c.tee = tee
}

func (c *Clock) advance(n int) {
	c.mu.Lock()
	c.pos.Bytes += int64(n)
	c.mu.Unlock()
}
