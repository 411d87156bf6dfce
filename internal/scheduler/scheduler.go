package scheduler

import (
	"math/rand"
	"sort"
	"time"

	"github.com/conorfennell/flashstudy/internal/difficulty"
	"github.com/conorfennell/flashstudy/internal/domain"
)

// Options controls how Order builds a study plan.
type Options struct {
	// Shuffle replaces priority ordering with a uniform random permutation.
	Shuffle bool
	// RestrictToIDs keeps only cards whose ID is in the set. Nil means no restriction.
	RestrictToIDs map[string]struct{}
	// StartIndex is where the session begins within the ordered cards.
	StartIndex int
	// Rand is the source used for shuffling. Nil uses a time-seeded source.
	Rand *rand.Rand
}

// Plan is the ordered sequence of cards for one session.
type Plan struct {
	Cards      []domain.Card
	StartIndex int
}

// IDSet builds a RestrictToIDs set from a list of card IDs.
func IDSet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Order returns the cards in the order they should be studied at now.
//
// Cards that have been overdue the longest come first, ties go to the harder
// (lower difficulty) card, and remaining ties keep their input order. The input
// slice is not modified.
func Order(cards []domain.Card, now time.Time, opts Options) Plan {
	pool := make([]domain.Card, 0, len(cards))
	for _, c := range cards {
		if opts.RestrictToIDs != nil {
			if _, ok := opts.RestrictToIDs[c.ID]; !ok {
				continue
			}
		}
		pool = append(pool, c)
	}

	if opts.Shuffle {
		r := opts.Rand
		if r == nil {
			r = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		r.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	} else {
		sort.SliceStable(pool, func(i, j int) bool {
			oi, oj := now.Sub(pool[i].NextReviewDate), now.Sub(pool[j].NextReviewDate)
			if oi != oj {
				return oi > oj
			}
			return difficulty.Normalize(pool[i].Difficulty) < difficulty.Normalize(pool[j].Difficulty)
		})
	}

	return Plan{Cards: pool, StartIndex: clampStart(opts.StartIndex, len(pool))}
}

func clampStart(start, n int) int {
	if n == 0 || start < 0 {
		return 0
	}
	if start >= n {
		return n - 1
	}
	return start
}

// DueCount returns how many cards are due at now.
func DueCount(cards []domain.Card, now time.Time) int {
	n := 0
	for _, c := range cards {
		if c.IsDue(now) {
			n++
		}
	}
	return n
}
