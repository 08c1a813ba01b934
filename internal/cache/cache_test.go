package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache[[]string](time.Minute)
	c.now = func() time.Time { return now }

	c.Set("tables", []string{"Parts"})
	got, ok := c.Get("tables")
	assert.True(t, ok)
	assert.Equal(t, []string{"Parts"}, got)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("tables")
	assert.False(t, ok)
}

func TestCache_DeleteAndPurge(t *testing.T) {
	c := NewCache[int](time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Purge()
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCache_ZeroTTLDisables(t *testing.T) {
	c := NewCache[int](0)
	c.Set("a", 1)
	_, ok := c.Get("a")
	assert.False(t, ok)
}
