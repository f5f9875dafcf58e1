package a2s

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

func TestCacheGetMissing(t *testing.T) {
	c := NewCache()
	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestCacheSetAndGet(t *testing.T) {
	c := NewCache()
	info := models.A2SInfo{ServerID: 1, Name: "kz.example", Map: "kz_epiphany", Players: 4, MaxPlayers: 10, UpdatedAt: time.Now()}
	c.Set(info)

	got, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, info.Name, got.Name)
	assert.Equal(t, info.Map, got.Map)
}

func TestCacheDelete(t *testing.T) {
	c := NewCache()
	c.Set(models.A2SInfo{ServerID: 2})
	c.Delete(2)

	_, ok := c.Get(2)
	assert.False(t, ok)
}

func TestCacheAllIsSnapshot(t *testing.T) {
	c := NewCache()
	c.Set(models.A2SInfo{ServerID: 1})
	c.Set(models.A2SInfo{ServerID: 2})

	snapshot := c.All()
	assert.Len(t, snapshot, 2)

	c.Set(models.A2SInfo{ServerID: 3})
	assert.Len(t, snapshot, 2, "All must return a copy, not a live view")
}
