package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEndpointCache_SetGet(t *testing.T) {
	c := NewEndpointCache(time.Minute, time.Minute)

	_, ok := c.Get("CP001")
	assert.False(t, ok)

	c.Set("CP001", "ws://10.0.0.1/ocpp/CP001")
	endpoint, ok := c.Get("CP001")
	assert.True(t, ok)
	assert.Equal(t, "ws://10.0.0.1/ocpp/CP001", endpoint)

	c.Set("CP001", "http://10.0.0.2/ocpp")
	endpoint, _ = c.Get("CP001")
	assert.Equal(t, "http://10.0.0.2/ocpp", endpoint)

	c.Delete("CP001")
	_, ok = c.Get("CP001")
	assert.False(t, ok)
}

func TestEndpointCache_Expiration(t *testing.T) {
	c := NewEndpointCache(20*time.Millisecond, time.Millisecond)
	c.Set("CP001", "http://cp")

	assert.Eventually(t, func() bool {
		_, ok := c.Get("CP001")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestEndpointCache_NoExpiration(t *testing.T) {
	c := NewEndpointCache(0, 0)
	c.Set("CP001", "http://cp")

	time.Sleep(10 * time.Millisecond)
	_, ok := c.Get("CP001")
	assert.True(t, ok)
}

func TestEndpointCache_Stats(t *testing.T) {
	c := NewEndpointCache(time.Minute, time.Minute)
	c.Set("A", "http://a")
	c.Get("A")
	c.Get("A")
	c.Get("B")

	stats := c.GetStats()
	assert.Equal(t, 1, stats.Items)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.0001)

	c.Flush()
	assert.Equal(t, 0, c.GetStats().Items)
}

func TestEndpointCache_Concurrent(t *testing.T) {
	c := NewEndpointCache(time.Minute, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set("CP", "http://cp")
			c.Get("CP")
		}(i)
	}
	wg.Wait()

	stats := c.GetStats()
	assert.Equal(t, int64(50), stats.Sets)
	assert.Equal(t, int64(50), stats.Hits+stats.Misses)
}
