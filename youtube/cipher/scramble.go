package cipher

import (
	"regexp"
	"strconv"
	"strings"
)

// Player scripts scramble signatures with a short function of the form
//
//	Ska=function(a){a=a.split("");Xy.Qq(a,3);Xy.zx(a,14);Xy.Jk(a,2);return a.join("")}
//
// whose helper object Xy holds reverse, splice and swap primitives. Both
// are found with regular expressions and replayed in Go, so the script
// never has to run for signatures.

type stepOp string

const (
	opReverse stepOp = "reverse"
	opSplice  stepOp = "splice"
	opSwap    stepOp = "swap"
)

type step struct {
	Op  stepOp `json:"op"`
	Arg int    `json:"arg,omitempty"`
}

const ident = `[a-zA-Z0-9$_]+`

var (
	scrambleBodyRe = regexp.MustCompile(`(` + ident + `)=(` + ident + `)\.split\(["']{2}\);([^}]*?)return\s+(` + ident + `)\.join\(["']{2}\)`)
	helperMethodRe = regexp.MustCompile(`(` + ident + `|"[^"]+")\s*:\s*function\s*\([^)]*\)\s*\{([^}]*)\}`)

	// a.get("n"))&&(b=Gka[0](b) or a.get("n"))&&(b=Tka(b)
	nCallRe = regexp.MustCompile(`\.get\("n"\)\)&&\(` + ident + `=(` + ident + `)(?:\[(\d+)\])?\(` + ident + `\)`)
)

// parseSteps extracts the scramble sequence. ok is false when the script
// has no recognisable scramble function or its helper object is missing.
func parseSteps(script string) ([]step, bool) {
	for _, m := range scrambleBodyRe.FindAllStringSubmatch(script, -1) {
		param := m[1]
		if m[2] != param || m[4] != param {
			continue
		}
		if steps, ok := stepsFromBody(script, param, m[3]); ok {
			return steps, true
		}
	}
	return nil, false
}

func stepsFromBody(script, param, body string) ([]step, bool) {
	callRe := regexp.MustCompile(`(` + ident + `)(?:\.(` + ident + `)|\[["']([^"']+)["']\])\(\s*` +
		regexp.QuoteMeta(param) + `\s*(?:,\s*(\d+))?\s*\)`)
	calls := callRe.FindAllStringSubmatch(body, -1)
	if len(calls) == 0 {
		return nil, false
	}

	obj := calls[0][1]
	ops, ok := helperOps(script, obj)
	if !ok {
		return nil, false
	}

	steps := make([]step, 0, len(calls))
	for _, c := range calls {
		if c[1] != obj {
			return nil, false
		}
		name := c[2]
		if name == "" {
			name = c[3]
		}
		op, known := ops[name]
		if !known {
			return nil, false
		}
		arg, _ := strconv.Atoi(c[4])
		steps = append(steps, step{Op: op, Arg: arg})
	}
	return steps, true
}

// helperOps maps the helper object's method names to primitives.
func helperOps(script, obj string) (map[string]stepOp, bool) {
	declRe := regexp.MustCompile(`(?:^|[^a-zA-Z0-9$_.])` + regexp.QuoteMeta(obj) + `\s*=\s*\{`)
	loc := declRe.FindStringIndex(script)
	if loc == nil {
		return nil, false
	}
	body, ok := braced(script, loc[1]-1)
	if !ok {
		return nil, false
	}

	ops := make(map[string]stepOp)
	for _, m := range helperMethodRe.FindAllStringSubmatch(body, -1) {
		name, fn := strings.Trim(m[1], `"`), m[2]
		switch {
		case strings.Contains(fn, ".reverse()"):
			ops[name] = opReverse
		case strings.Contains(fn, "%") && strings.Contains(fn, ".length"):
			ops[name] = opSwap
		case strings.Contains(fn, ".splice("):
			ops[name] = opSplice
		}
	}
	return ops, len(ops) > 0
}

// applySteps replays steps on sig.
func applySteps(sig string, steps []step) string {
	r := []rune(sig)
	for _, s := range steps {
		switch s.Op {
		case opReverse:
			for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
				r[i], r[j] = r[j], r[i]
			}
		case opSplice:
			if s.Arg >= 0 && s.Arg <= len(r) {
				r = r[s.Arg:]
			}
		case opSwap:
			if len(r) > 1 {
				n := s.Arg % len(r)
				r[0], r[n] = r[n], r[0]
			}
		}
	}
	return string(r)
}

// parseNFunc returns the n transform as a standalone function expression,
// or "" when the script does not reveal it.
func parseNFunc(script string) string {
	m := nCallRe.FindStringSubmatch(script)
	if m == nil {
		return ""
	}
	name := m[1]
	if m[2] != "" {
		idx, _ := strconv.Atoi(m[2])
		arrRe := regexp.MustCompile(`var\s+` + regexp.QuoteMeta(name) + `\s*=\s*\[([^\]]*)\]`)
		am := arrRe.FindStringSubmatch(script)
		if am == nil {
			return ""
		}
		elems := strings.Split(am[1], ",")
		if idx >= len(elems) {
			return ""
		}
		name = strings.TrimSpace(elems[idx])
	}

	defRe := regexp.MustCompile(`(?:function\s+` + regexp.QuoteMeta(name) + `|(?:^|[^a-zA-Z0-9$_.])` +
		regexp.QuoteMeta(name) + `\s*=\s*function)\s*\(([^)]*)\)\s*\{`)
	loc := defRe.FindStringSubmatchIndex(script)
	if loc == nil {
		return ""
	}
	body, ok := braced(script, loc[1]-1)
	if !ok {
		return ""
	}
	return "function(" + script[loc[2]:loc[3]] + "){" + body + "}"
}

// braced returns the text between the brace at open and its match,
// skipping over string literals.
func braced(src string, open int) (string, bool) {
	if open < 0 || open >= len(src) || src[open] != '{' {
		return "", false
	}
	depth := 0
	var quote byte
	for i := open; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return src[open+1 : i], true
			}
		}
	}
	return "", false
}
