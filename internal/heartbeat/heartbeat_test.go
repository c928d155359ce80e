package heartbeat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_TouchThenLast(t *testing.T) {
	tr := New()
	_, ok := tr.Last("m1")
	assert.False(t, ok)

	before := time.Now()
	tr.Touch("m1")
	ts, ok := tr.Last("m1")
	assert.True(t, ok)
	assert.False(t, ts.Before(before))
}

func TestTracker_Clear(t *testing.T) {
	tr := New()
	tr.Touch("m1")
	tr.Clear("m1")
	_, ok := tr.Last("m1")
	assert.False(t, ok)
}

func TestTracker_ConcurrentTouch(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Touch("m1")
		}()
	}
	wg.Wait()
	_, ok := tr.Last("m1")
	assert.True(t, ok)
}
