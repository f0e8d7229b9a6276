package relay

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
)

var subjects = []string{
	"algebra", "biology", "calculus", "chemistry", "geometry", "history", "physics", "poetry", "grammar", "logic",
	"botany", "geology", "ethics", "music", "drawing", "latin", "statistics", "economics", "astronomy", "anatomy",
}

var supplies = []string{
	"pencil", "notebook", "eraser", "marker", "binder", "ruler", "compass", "stapler", "crayon", "folder",
	"backpack", "lantern", "teacup", "bookmark", "inkwell", "sticky", "flashcard", "highlighter", "desk", "lamp",
}

var moods = []string{
	"calm", "focused", "sleepy", "cheery", "curious", "steady", "bright", "quiet", "cozy", "eager",
	"brave", "gentle", "jolly", "patient", "plucky", "swift", "tidy", "merry", "keen", "mellow",
}

var critters = []string{
	"owl", "otter", "panda", "koala", "fox", "hedgehog", "robin", "beaver", "penguin", "sparrow",
	"turtle", "badger", "lynx", "heron", "finch", "marmot", "seal", "wombat", "raven", "moth",
}

var snacks = []string{
	"biscuit", "muffin", "pretzel", "waffle", "cocoa", "toffee", "noodle", "dumpling", "pancake", "cookie",
	"scone", "bagel", "popcorn", "mochi", "crumpet", "raisin", "granola", "tea", "cracker", "brownie",
}

// SuggestRoomID returns an unused, memorable room id of the form
// word-word-word-word, one word from each of four distinct lists.
func (r *Registry) SuggestRoomID() string {
	pools := [][]string{moods, critters, subjects, supplies, snacks}

	for {
		order := permutation(len(pools))
		id := fmt.Sprintf("%s-%s-%s-%s",
			pick(pools[order[0]]), pick(pools[order[1]]), pick(pools[order[2]]), pick(pools[order[3]]))

		if _, taken := r.rooms[id]; !taken {
			return id
		}
	}
}

func pick(words []string) string {
	return words[randomIndex(len(words))]
}

// permutation returns a random ordering of 0..n-1.
func permutation(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return p
}

// randomIndex returns a cryptographically secure index in [0, max).
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		slog.Error("random source failed", "err", err)
		panic(err)
	}
	return int(n.Int64())
}
