package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	assert.Equal(t, start, f.Now())

	f.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), f.Now())
}

func TestFakeSet(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	target := time.Unix(1000, 0)
	f.Set(target)
	assert.Equal(t, target, f.Now())
}

func TestRealReturnsWallClockTime(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	after := time.Now()
	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}
