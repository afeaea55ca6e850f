package formats

import (
	"fmt"
	"strconv"
	"strings"
)

// Strategy names how the preferred candidates are ranked.
type Strategy int

const (
	// StrategyClosest picks the height nearest to Policy.Target.
	StrategyClosest Strategy = iota
	// StrategyHighest picks the tallest candidate.
	StrategyHighest
	// StrategyBest is StrategyHighest with bitrate as the tie-break.
	StrategyBest
	// StrategyLast picks the last candidate in extractor order.
	StrategyLast
)

// TieBreak resolves equal distances under StrategyClosest.
type TieBreak int

const (
	TieHigher TieBreak = iota
	TieLower
	TieFirst
)

// DefaultTarget is the height StrategyClosest aims at by default.
const DefaultTarget = 720

// Policy configures Select.
type Policy struct {
	Strategy Strategy
	Target   int
	Tie      TieBreak
	// PreferProgressive narrows mp4 candidates to those carrying both
	// audio and video whenever at least one exists. Off by default: on
	// YouTube the only progressive mp4 is usually 360p.
	PreferProgressive bool
}

// DefaultPolicy returns closest=720 with ties toward the higher height.
func DefaultPolicy() Policy {
	return Policy{
		Strategy: StrategyClosest,
		Target:   DefaultTarget,
		Tie:      TieHigher,
	}
}

// ParsePolicy parses a selection policy string.
//
// Grammar (comma separated, case-insensitive):
//   - closest=NNN         nearest height to NNN
//   - highest             tallest
//   - best                tallest, then highest bitrate
//   - last                last usable candidate
//   - tie=higher|lower|first   tie-break for closest
//   - progressive=true|false   see Policy.PreferProgressive
//
// An empty string yields DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	p := DefaultPolicy()

	for _, raw := range strings.Split(s, ",") {
		tok := strings.ToLower(strings.TrimSpace(raw))
		if tok == "" {
			continue
		}

		key, val, hasVal := strings.Cut(tok, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)

		switch key {
		case "closest":
			p.Strategy = StrategyClosest
			if hasVal {
				n, err := strconv.Atoi(val)
				if err != nil || n <= 0 {
					return Policy{}, fmt.Errorf("invalid closest target %q", val)
				}
				p.Target = n
			}
		case "highest":
			p.Strategy = StrategyHighest
		case "best":
			p.Strategy = StrategyBest
		case "last":
			p.Strategy = StrategyLast
		case "tie":
			switch val {
			case "higher":
				p.Tie = TieHigher
			case "lower":
				p.Tie = TieLower
			case "first":
				p.Tie = TieFirst
			default:
				return Policy{}, fmt.Errorf("invalid tie-break %q", val)
			}
		case "progressive":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return Policy{}, fmt.Errorf("invalid progressive flag %q", val)
			}
			p.PreferProgressive = b
		default:
			return Policy{}, fmt.Errorf("unknown policy token %q", tok)
		}
	}

	return p, nil
}

// String renders the policy in ParsePolicy syntax.
func (p Policy) String() string {
	var head string
	switch p.Strategy {
	case StrategyHighest:
		head = "highest"
	case StrategyBest:
		head = "best"
	case StrategyLast:
		head = "last"
	default:
		head = "closest=" + strconv.Itoa(p.Target)
		switch p.Tie {
		case TieLower:
			head += ",tie=lower"
		case TieFirst:
			head += ",tie=first"
		}
	}
	if p.PreferProgressive {
		head += ",progressive=true"
	}
	return head
}
