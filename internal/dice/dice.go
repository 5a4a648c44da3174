// Package dice evaluates tabletop dice expressions.
//
// An expression is one or more signed terms: dice groups ("2d6", "d20",
// "-1d4") and flat modifiers ("+3", "-1"). Whitespace between terms acts
// as '+' and the 'd' is case-insensitive, so "d20 + 5" and "1D20+5" roll
// the same. Randomness uses [math/rand/v2]: [Roll] draws from the
// per-process automatically-seeded source, [RollSeeded] uses a dedicated
// PCG source so identical seeds reproduce identical rolls.
package dice

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

// maxDice caps the total number of dice one expression may roll. Keeps a
// hostile "99999999d2" from allocating gigabytes.
const maxDice = 10_000

// termPattern matches one signed term: a dice group (groups 2 and 3) or a
// flat modifier (group 4). Text between terms that matches neither is
// skipped, which is what makes "d20+++5" from normalised whitespace work.
var termPattern = regexp.MustCompile(`([+-]?)(?:(\d*)[dD](\d+)|(\d+))`)

// Term is one evaluated component of an expression: a dice group (Num,
// Sides and Rolls set) or a flat modifier (Flat set).
type Term struct {
	Term     string `json:"term"`
	Sign     string `json:"sign"`
	Num      int    `json:"num,omitempty"`
	Sides    int    `json:"sides,omitempty"`
	Flat     int    `json:"flat,omitempty"`
	Rolls    []int  `json:"rolls,omitempty"`
	Subtotal int    `json:"subtotal"`
}

// Result is a fully evaluated dice expression.
type Result struct {
	Expression string `json:"expression"`
	Normalized string `json:"normalized"`
	Total      int    `json:"total"`
	Terms      []Term `json:"terms"`
}

// String renders the roll with a per-term breakdown, e.g.
// "1d20+5 = 22 [1d20: 17] [+5]".
func (r *Result) String() string {
	parts := make([]string, len(r.Terms))
	for i, t := range r.Terms {
		if t.Sides > 0 {
			rolls := make([]string, len(t.Rolls))
			for j, v := range t.Rolls {
				rolls[j] = strconv.Itoa(v)
			}
			parts[i] = fmt.Sprintf("%s: %s", t.Term, strings.Join(rolls, ", "))
		} else {
			parts[i] = t.Term
		}
	}
	return fmt.Sprintf("%s = %d [%s]", r.Normalized, r.Total, strings.Join(parts, "] ["))
}

// Roll evaluates expr using the shared automatically-seeded source.
func Roll(expr string) (*Result, error) {
	return evaluate(expr, rand.IntN)
}

// RollSeeded evaluates expr with a deterministic generator. Identical
// seed and expression always produce identical rolls.
func RollSeeded(expr string, seed uint64) (*Result, error) {
	rng := rand.New(rand.NewPCG(seed, seed))
	return evaluate(expr, rng.IntN)
}

func evaluate(expr string, intn func(int) int) (*Result, error) {
	// Whitespace between terms reads as '+'. Runs of separators are
	// harmless: the term pattern skips what it cannot match.
	normalized := strings.Join(strings.Fields(expr), "+")
	if normalized == "" {
		return nil, fmt.Errorf("dice: empty expression")
	}

	res := &Result{Expression: expr, Normalized: normalized}
	diceRolled := 0

	for _, m := range termPattern.FindAllStringSubmatch(normalized, -1) {
		signStr := m[1]
		sign := 1
		if signStr == "-" {
			sign = -1
		}

		if m[4] != "" {
			flat, err := strconv.Atoi(m[4])
			if err != nil {
				return nil, fmt.Errorf("dice: invalid modifier %q in expression %q", m[4], expr)
			}
			res.Terms = append(res.Terms, Term{
				Term:     signStr + m[4],
				Sign:     normalizeSign(signStr),
				Flat:     flat,
				Subtotal: sign * flat,
			})
			res.Total += sign * flat
			continue
		}

		num := 1
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				return nil, fmt.Errorf("dice: invalid dice count %q in expression %q", m[2], expr)
			}
			num = n
		}
		sides, err := strconv.Atoi(m[3])
		if err != nil {
			return nil, fmt.Errorf("dice: invalid sides %q in expression %q", m[3], expr)
		}
		if sides < 1 {
			return nil, fmt.Errorf("dice: sides must be ≥ 1, got %d in expression %q", sides, expr)
		}
		diceRolled += num
		if diceRolled > maxDice {
			return nil, fmt.Errorf("dice: expression %q rolls more than %d dice", expr, maxDice)
		}

		rolls := make([]int, num)
		subtotal := 0
		for i := range num {
			r := intn(sides) + 1
			rolls[i] = r
			subtotal += r
		}
		subtotal *= sign

		res.Terms = append(res.Terms, Term{
			Term:     fmt.Sprintf("%s%dd%d", signStr, num, sides),
			Sign:     normalizeSign(signStr),
			Num:      num,
			Sides:    sides,
			Rolls:    rolls,
			Subtotal: subtotal,
		})
		res.Total += subtotal
	}

	if len(res.Terms) == 0 {
		return nil, fmt.Errorf("dice: could not parse expression %q", expr)
	}
	return res, nil
}

func normalizeSign(sign string) string {
	if sign == "" {
		return "+"
	}
	return sign
}
