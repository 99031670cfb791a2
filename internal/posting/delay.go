package posting

import (
	"math"
	"math/rand"
	"time"
)

// Delay shaping mimics human reading and typing cadence so automated
// posts do not land instantly after a crawl.

type speedProfile struct {
	minWPM float64
	maxWPM float64
}

var typingProfiles = map[string]speedProfile{
	"slow":    {30, 50},
	"average": {40, 70},
	"fast":    {60, 90},
}

var readingProfiles = map[string]speedProfile{
	"skim":    {300, 450},
	"normal":  {200, 300},
	"careful": {100, 200},
}

func uniform(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// TypingDelay estimates the time a human would need to type textLength
// characters, with thinking pauses and correction time. Floor 3s.
func TypingDelay(textLength int, profile string) time.Duration {
	p, ok := typingProfiles[profile]
	if !ok {
		p = typingProfiles["average"]
	}

	words := float64(textLength) / 5
	wpm := uniform(p.minWPM, p.maxWPM)
	base := words / wpm * 60

	pauses := int(words / 20)
	if pauses < 1 {
		pauses = 1
	}
	thinking := 0.0
	for i := 0; i < pauses; i++ {
		thinking += uniform(1, 4)
	}
	typos := uniform(0, words*0.1)

	total := (base + thinking + typos) * uniform(0.9, 1.1)
	if total < 3 {
		total = 3
	}
	return seconds(total)
}

// ReadingDelay estimates the time to read textLength characters before
// responding. Floor 5s.
func ReadingDelay(textLength int, comprehension string) time.Duration {
	p, ok := readingProfiles[comprehension]
	if !ok {
		p = readingProfiles["normal"]
	}

	words := float64(textLength) / 5
	wpm := uniform(p.minWPM, p.maxWPM)
	base := words / wpm * 60

	scroll := 0.0
	if words > 100 {
		scroll = uniform(1, 3)
	}
	focus := uniform(2, 5)

	total := base + scroll + focus
	if total < 5 {
		total = 5
	}
	return seconds(total)
}

// HumanLikeDelay is the full read-navigate-type-review span for one
// reply.
func HumanLikeDelay(originalLength, responseLength int, includeNavigation bool) time.Duration {
	total := ReadingDelay(originalLength, "normal") + TypingDelay(responseLength, "average")
	if includeNavigation {
		total += seconds(uniform(3, 8))
	}
	total += seconds(uniform(2, 5))
	return total
}

// Jitter shifts a delay by up to ±pct of its value.
func Jitter(base time.Duration, pct float64) time.Duration {
	j := float64(base) * pct
	return base + time.Duration(uniform(-j, j))
}

// InterPostDelay spaces consecutive posts, weighted toward the middle
// of the range.
func InterPostDelay(minSeconds, maxSeconds int) time.Duration {
	lo, hi := float64(minSeconds), float64(maxSeconds)
	mid := (lo + hi) / 2

	// Triangular distribution peaked at the midpoint.
	u := rand.Float64()
	var base float64
	if u < 0.5 {
		base = lo + (mid-lo)*math.Sqrt(2*u)
	} else {
		base = hi - (hi-mid)*math.Sqrt(2*(1-u))
	}
	return Jitter(seconds(base), 0.1)
}

// SubredditCooldown returns the remaining wait before posting to the
// same subreddit again, zero when the gap has passed.
func SubredditCooldown(sinceLastPost time.Duration, minGap time.Duration) time.Duration {
	remaining := minGap - sinceLastPost
	if remaining <= 0 {
		return 0
	}
	return Jitter(remaining, 0.1)
}
