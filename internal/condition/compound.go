package condition

import (
	"context"
	"fmt"
	"strings"
)

// And fires when every child fires at the same instant.
type And struct {
	Children []Condition
}

func (c *And) IsTrue(ctx context.Context, ec *EvalContext) (bool, error) {
	for _, child := range c.Children {
		ok, err := child.IsTrue(ctx, ec)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return len(c.Children) > 0, nil
}

func (c *And) Name() string { return joinNames("ALL of", c.Children) }

func (c *And) LookbackDays() int { return maxLookback(c.Children) }

func (c *And) Symbols() []string { return collectSymbols(c.Children) }

func (c *And) Reset() { resetAll(c.Children) }

// Or fires when any child fires.
type Or struct {
	Children []Condition
}

func (c *Or) IsTrue(ctx context.Context, ec *EvalContext) (bool, error) {
	for _, child := range c.Children {
		ok, err := child.IsTrue(ctx, ec)
		if err != nil {
			return false, err
		}

		if ok {
			return true, nil
		}
	}

	return false, nil
}

func (c *Or) Name() string { return joinNames("ANY of", c.Children) }

func (c *Or) LookbackDays() int { return maxLookback(c.Children) }

func (c *Or) Symbols() []string { return collectSymbols(c.Children) }

func (c *Or) Reset() { resetAll(c.Children) }

// Then fires when its children have fired in sequence: child i is only
// evaluated after children 0..i-1 have each fired on earlier (or the same)
// steps. Progress persists across steps and is cleared by Reset.
type Then struct {
	Children []Condition
	progress int
}

func (c *Then) IsTrue(ctx context.Context, ec *EvalContext) (bool, error) {
	if len(c.Children) == 0 {
		return false, nil
	}

	// Advance through as many pending children as fire this instant.
	for c.progress < len(c.Children) {
		ok, err := c.Children[c.progress].IsTrue(ctx, ec)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}

		c.progress++
	}

	// Whole sequence satisfied; rearm for the next occurrence.
	c.progress = 0

	return true, nil
}

func (c *Then) Name() string { return joinNames("SEQUENCE of", c.Children) }

func (c *Then) LookbackDays() int { return maxLookback(c.Children) }

func (c *Then) Symbols() []string { return collectSymbols(c.Children) }

func (c *Then) Reset() {
	c.progress = 0
	resetAll(c.Children)
}

func joinNames(prefix string, children []Condition) string {
	names := make([]string, len(children))
	for i, child := range children {
		names[i] = child.Name()
	}

	return fmt.Sprintf("%s [%s]", prefix, strings.Join(names, "; "))
}

func maxLookback(children []Condition) int {
	max := 0

	for _, child := range children {
		if days := child.LookbackDays(); days > max {
			max = days
		}
	}

	return max
}

func collectSymbols(children []Condition) []string {
	seen := make(map[string]struct{})
	symbols := make([]string, 0)

	for _, child := range children {
		for _, symbol := range child.Symbols() {
			if _, ok := seen[symbol]; ok {
				continue
			}

			seen[symbol] = struct{}{}
			symbols = append(symbols, symbol)
		}
	}

	return symbols
}

func resetAll(children []Condition) {
	for _, child := range children {
		child.Reset()
	}
}
