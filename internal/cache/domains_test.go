package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDomainCache(t *testing.T) {
	t.Run("空缓存未命中", func(t *testing.T) {
		c := NewDomainCache(time.Minute)

		_, ok := c.Get()
		assert.False(t, ok)
	})

	t.Run("写入后命中且返回副本", func(t *testing.T) {
		c := NewDomainCache(time.Minute)
		c.Set([]string{"example.com", "mailbox.dev"})

		got, ok := c.Get()
		assert.True(t, ok)
		assert.Equal(t, []string{"example.com", "mailbox.dev"}, got)

		got[0] = "mutated"
		again, _ := c.Get()
		assert.Equal(t, "example.com", again[0])
	})

	t.Run("过期后未命中", func(t *testing.T) {
		c := NewDomainCache(10 * time.Millisecond)
		c.Set([]string{"example.com"})

		time.Sleep(20 * time.Millisecond)

		_, ok := c.Get()
		assert.False(t, ok)
	})

	t.Run("失效后未命中", func(t *testing.T) {
		c := NewDomainCache(time.Minute)
		c.Set([]string{"example.com"})
		c.Invalidate()

		_, ok := c.Get()
		assert.False(t, ok)
	})
}
