package formats

import (
	"math"

	"github.com/samber/lo"

	"github.com/ytget/streamproxy/types"
)

// Usable returns the candidates that can be handed to a player as-is: a
// direct URL that is not a manifest. Order is preserved.
func Usable(candidates []types.FormatCandidate) []types.FormatCandidate {
	return lo.Filter(candidates, func(f types.FormatCandidate, _ int) bool {
		return hasDirectURL(f) && !isManifest(f)
	})
}

// Select picks one candidate according to p.
//
// Usable mp4 candidates are preferred and ranked by the policy. Without
// any, the first usable candidate in extractor order wins. The boolean is
// false when nothing is usable. Equal ranks resolve to extractor order, so
// the same input always yields the same pick.
func Select(candidates []types.FormatCandidate, p Policy) (types.FormatCandidate, bool) {
	usable := Usable(candidates)
	if len(usable) == 0 {
		return types.FormatCandidate{}, false
	}

	mp4 := lo.Filter(usable, func(f types.FormatCandidate, _ int) bool {
		return containerEquals(f, "mp4")
	})
	if len(mp4) == 0 {
		return usable[0], true
	}

	pool := mp4
	if p.PreferProgressive {
		if prog := lo.Filter(mp4, func(f types.FormatCandidate, _ int) bool { return f.Progressive() }); len(prog) > 0 {
			pool = prog
		}
	}

	return rank(pool, p), true
}

// rank returns the top of pool; pool is non-empty.
func rank(pool []types.FormatCandidate, p Policy) types.FormatCandidate {
	switch p.Strategy {
	case StrategyLast:
		return pool[len(pool)-1]
	case StrategyHighest:
		return lo.MinBy(pool, func(a, b types.FormatCandidate) bool {
			return a.Height.OrElse(-1) > b.Height.OrElse(-1)
		})
	case StrategyBest:
		return lo.MinBy(pool, betterByHeightThenBitrate)
	}

	target := p.Target
	if target <= 0 {
		target = DefaultTarget
	}
	dist := func(f types.FormatCandidate) int {
		if d := heightDistance(f, target); d >= 0 {
			return d
		}
		return math.MaxInt
	}

	// lo.MinBy keeps the earlier element unless the comparison is strict.
	return lo.MinBy(pool, func(a, b types.FormatCandidate) bool {
		da, db := dist(a), dist(b)
		if da != db {
			return da < db
		}
		ha, hb := a.Height.OrElse(0), b.Height.OrElse(0)
		if ha == hb {
			// Same height: a file with sound beats a video-only one.
			return a.Progressive() && !b.Progressive()
		}
		switch p.Tie {
		case TieHigher:
			return ha > hb
		case TieLower:
			return ha < hb
		}
		return false
	})
}
