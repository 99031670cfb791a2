package posting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypingDelay_Floor(t *testing.T) {
	t.Parallel()
	for i := 0; i < 20; i++ {
		assert.GreaterOrEqual(t, TypingDelay(5, "fast"), 3*time.Second)
	}
}

func TestTypingDelay_ScalesWithLength(t *testing.T) {
	t.Parallel()
	short := TypingDelay(50, "average")
	long := TypingDelay(5000, "average")
	assert.Greater(t, long, short)
	// 1000 words at 40-70 WPM is at least ~14 minutes of typing.
	assert.GreaterOrEqual(t, long, 10*time.Minute)
}

func TestReadingDelay_Floor(t *testing.T) {
	t.Parallel()
	for i := 0; i < 20; i++ {
		assert.GreaterOrEqual(t, ReadingDelay(10, "skim"), 5*time.Second)
	}
}

func TestHumanLikeDelay_CombinesComponents(t *testing.T) {
	t.Parallel()
	d := HumanLikeDelay(500, 200, true)
	// Reading floor 5s + typing floor 3s + navigation 3s + review 2s.
	assert.GreaterOrEqual(t, d, 13*time.Second)

	noNav := HumanLikeDelay(500, 200, false)
	assert.GreaterOrEqual(t, noNav, 10*time.Second)
}

func TestJitter_StaysWithinBounds(t *testing.T) {
	t.Parallel()
	base := 10 * time.Second
	for i := 0; i < 100; i++ {
		d := Jitter(base, 0.2)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
}

func TestInterPostDelay_StaysWithinJitteredRange(t *testing.T) {
	t.Parallel()
	for i := 0; i < 100; i++ {
		d := InterPostDelay(60, 300)
		assert.GreaterOrEqual(t, d, 54*time.Second)
		assert.LessOrEqual(t, d, 330*time.Second)
	}
}

func TestSubredditCooldown(t *testing.T) {
	t.Parallel()
	assert.Equal(t, time.Duration(0), SubredditCooldown(10*time.Minute, 5*time.Minute))
	assert.Equal(t, time.Duration(0), SubredditCooldown(5*time.Minute, 5*time.Minute))

	remaining := SubredditCooldown(time.Minute, 5*time.Minute)
	assert.Greater(t, remaining, 3*time.Minute)
	assert.Less(t, remaining, 5*time.Minute)
}
