package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupFirstDeliveryPasses(t *testing.T) {
	d := newDedup(time.Minute)

	assert.False(t, d.isDuplicate("a"))
	assert.True(t, d.isDuplicate("a"))
	assert.False(t, d.isDuplicate("b"))
}

func TestDedupExpiresAfterTTL(t *testing.T) {
	d := newDedup(10 * time.Millisecond)

	assert.False(t, d.isDuplicate("a"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, d.isDuplicate("a"), "entry outside the window is not a duplicate")
}

func TestDedupCleanupBoundsMemory(t *testing.T) {
	d := newDedup(10 * time.Millisecond)

	d.isDuplicate("a")
	d.isDuplicate("b")
	time.Sleep(20 * time.Millisecond)
	d.isDuplicate("c")

	d.cleanup()

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Len(t, d.seen, 1)
	_, ok := d.seen["c"]
	assert.True(t, ok)
}
