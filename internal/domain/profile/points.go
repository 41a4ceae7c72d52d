package profile

import (
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// LevelChange describes a level transition caused by a point delta.
type LevelChange struct {
	From Level
	To   Level
}

// Changed reports whether the level moved.
func (c LevelChange) Changed() bool {
	return c.From != c.To
}

// AddPoints adds a non-negative delta to the total and recomputes the level.
// A negative delta is rejected and the profile is returned unchanged.
func AddPoints(p Profile, delta int) (Profile, LevelChange, error) {
	if delta < 0 {
		return p, LevelChange{From: p.Level, To: p.Level}, shared.ErrNegativePoints
	}

	next := p.Clone()
	from := next.Level
	next.TotalPoints += delta
	next.Level = LevelFor(next.TotalPoints)

	return next, LevelChange{From: from, To: next.Level}, nil
}

// CrossedThresholds returns the level thresholds that lie in (before, after].
func CrossedThresholds(before, after int) []int {
	var crossed []int
	for _, t := range LevelThresholds() {
		if before < t && after >= t {
			crossed = append(crossed, t)
		}
	}
	return crossed
}
