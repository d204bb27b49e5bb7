// Package roomname makes memorable room names like "kitten-waffle-stardust-happy".
package roomname

import (
	"strings"

	"github.com/pion/randutil"
)

// Words is the number of words in a generated name.
const Words = 4

var (
	pools = [][]string{animals, dishes, names, randomWords, adjectives, extras}
	rng   = randutil.NewMathRandomGenerator()
)

// Generate picks one word from each of four distinct word lists.
func Generate() string {
	order := make([]int, len(pools))
	for i := range order {
		order[i] = i
	}
	// Partial Fisher-Yates over the list indices
	for i := 0; i < Words; i++ {
		j := i + rng.Intn(len(order)-i)
		order[i], order[j] = order[j], order[i]
	}

	words := make([]string, Words)
	for i := range words {
		pool := pools[order[i]]
		words[i] = pool[rng.Intn(len(pool))]
	}
	return strings.Join(words, "-")
}
