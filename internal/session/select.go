package session

import (
	"math/rand"
	"slices"

	"github.com/prep-work/backend/internal/model"
)

// tierOrder is the fixed concatenation order of the selection.
var tierOrder = []model.Difficulty{
	model.DifficultyEasy,
	model.DifficultyMedium,
	model.DifficultyHard,
}

// SelectQuestions picks a session's question list from the full pool of an
// assignment: the pool is uniformly shuffled, ceil(n/3) questions are taken
// from each difficulty tier in shuffle order, and the concatenation
// easy, medium, hard is truncated to n. Member selection varies per session
// while the difficulty distribution stays stable.
//
// A tier with fewer questions than its quota contributes all it has. The
// result may therefore be shorter than n; callers report len(result) as the
// effective question count.
//
// rng may be nil, in which case the shared global source is used.
func SelectQuestions(pool []model.Question, n int, rng *rand.Rand) []model.Question {
	if n <= 0 || len(pool) == 0 {
		return nil
	}

	shuffled := slices.Clone(pool)
	swap := func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] }
	if rng != nil {
		rng.Shuffle(len(shuffled), swap)
	} else {
		rand.Shuffle(len(shuffled), swap)
	}

	byTier := make(map[model.Difficulty][]model.Question, len(tierOrder))
	for _, q := range shuffled {
		byTier[q.Difficulty] = append(byTier[q.Difficulty], q)
	}

	quota := (n + 2) / 3
	var selected []model.Question
	for _, tier := range tierOrder {
		qs := byTier[tier]
		if len(qs) > quota {
			qs = qs[:quota]
		}
		selected = append(selected, qs...)
	}

	if len(selected) > n {
		selected = selected[:n]
	}
	return selected
}
