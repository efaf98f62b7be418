// Package template parses task description templates with randomized numeric
// placeholders of the form {min,max} or {min,max,round}.
package template

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/clanhall/taskwheel/internal/domain"
)

// Template is a parsed description template. Evaluate draws fresh random
// values on every call; callers that need a frozen rendering must evaluate
// once and persist the result.
type Template struct {
	source   string
	segments []segment
}

type segment struct {
	literal   string
	component *randomComponent
}

type randomComponent struct {
	min, max, round int
}

// evaluate draws uniformly from [min, max] and rounds to the nearest multiple
// of round, ties rounding up.
func (c *randomComponent) evaluate() int {
	v := c.min + rand.Intn(c.max-c.min+1)
	return int(math.Round(float64(v)/float64(c.round))) * c.round
}

// Parse scans the template left to right. Every {...} span must match
// "{ int , int (, int)? }" with optional whitespace around the numbers;
// anything else fails with domain.ErrTemplateFormat naming the template.
func Parse(source string) (*Template, error) {
	t := &Template{source: source}
	rest := source
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			// An unterminated brace is not a placeholder span; keep it as text.
			break
		}
		if open > 0 {
			t.segments = append(t.segments, segment{literal: rest[:open]})
		}
		span := rest[open : open+closing+1]
		component, err := parseComponent(span)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", domain.ErrTemplateFormat, source)
		}
		t.segments = append(t.segments, segment{component: component})
		rest = rest[open+closing+1:]
	}
	if rest != "" {
		t.segments = append(t.segments, segment{literal: rest})
	}
	return t, nil
}

func parseComponent(span string) (*randomComponent, error) {
	inner := span[1 : len(span)-1]
	fields := strings.Split(inner, ",")
	if len(fields) < 2 || len(fields) > 3 {
		return nil, fmt.Errorf("expected 2 or 3 fields, got %d", len(fields))
	}
	nums := make([]int, len(fields))
	for i, f := range fields {
		n, err := parseUint(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		nums[i] = n
	}
	c := &randomComponent{min: nums[0], max: nums[1], round: 1}
	if len(nums) == 3 {
		c.round = nums[2]
	}
	if c.max < c.min || c.round < 1 {
		return nil, fmt.Errorf("invalid range")
	}
	return c, nil
}

// parseUint accepts plain digit runs only; signs, blanks and hex forms that
// strconv would otherwise tolerate are rejected.
func parseUint(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	}
	return strconv.Atoi(s)
}

// Source returns the original template string verbatim.
func (t *Template) Source() string {
	return t.source
}

// Placeholders returns the number of randomized components in the template.
func (t *Template) Placeholders() int {
	n := 0
	for _, s := range t.segments {
		if s.component != nil {
			n++
		}
	}
	return n
}

// Evaluate renders the template with freshly drawn values. Two calls on the
// same template produce independently randomized results.
func (t *Template) Evaluate() string {
	var b strings.Builder
	for _, s := range t.segments {
		if s.component != nil {
			b.WriteString(strconv.Itoa(s.component.evaluate()))
			continue
		}
		b.WriteString(s.literal)
	}
	return b.String()
}

// Evaluate is a convenience for parse-then-evaluate of a single template.
func Evaluate(source string) (string, error) {
	t, err := Parse(source)
	if err != nil {
		return "", err
	}
	return t.Evaluate(), nil
}
