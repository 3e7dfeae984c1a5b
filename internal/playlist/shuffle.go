package playlist

import "math/rand/v2"

func shuffle(items []*Item) {
	rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}
