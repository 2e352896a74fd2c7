package pipeline

import "math/rand/v2"

var fallbackRoasts = []string{
	"Your singing was so unique, even AI couldn't process it. That's actually impressive in a terrifying way! 🤖",
	"I've heard better pitch control from a broken GPS. But hey, at least you're confident! 🎵",
	"That performance had more plot twists than a soap opera. Bravo for keeping us guessing! 🎭",
}

// FallbackRoasts returns the static pool used when commentary generation fails.
func FallbackRoasts() []string {
	return append([]string(nil), fallbackRoasts...)
}

func randomPick(n int) int {
	return rand.IntN(n)
}

func pickFallback(pick func(int) int) string {
	idx := pick(len(fallbackRoasts))
	if idx < 0 || idx >= len(fallbackRoasts) {
		idx = 0
	}
	return fallbackRoasts[idx]
}
