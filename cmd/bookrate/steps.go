package main

import (
	"fmt"
	"strconv"

	"github.com/Clark-Hu/bookrate/internal/controller"
	"github.com/Clark-Hu/bookrate/internal/domain"
)

type stepKind int

const (
	stepRate stepKind = iota
	stepClear
	stepSearch
)

// step is one replayed user gesture.
type step struct {
	kind  stepKind
	book  domain.BookID
	stars int
	query string
}

func (s step) String() string {
	switch s.kind {
	case stepRate:
		return fmt.Sprintf("rate %s %d", s.book, s.stars)
	case stepClear:
		return fmt.Sprintf("clear %s", s.book)
	default:
		return fmt.Sprintf("search %q", s.query)
	}
}

func (s step) apply(c *controller.Controller) error {
	switch s.kind {
	case stepRate:
		return c.ClickStar(s.book, s.stars)
	case stepClear:
		return c.ClickDelete(s.book)
	default:
		_, err := c.SubmitSearch(s.query)
		return err
	}
}

// parseSteps reads `rate <book> <stars>`, `clear <book>` and
// `search <query>` gestures from args.
func parseSteps(args []string) ([]step, error) {
	var steps []step
	for i := 0; i < len(args); {
		verb := args[i]
		need := map[string]int{"rate": 2, "clear": 1, "search": 1}[verb]
		if need == 0 {
			return nil, fmt.Errorf("unknown gesture %q", verb)
		}
		if i+need >= len(args) {
			return nil, fmt.Errorf("%s: expected %d argument(s)", verb, need)
		}
		operands := args[i+1 : i+1+need]
		i += need + 1

		switch verb {
		case "rate":
			book := domain.BookID(operands[0])
			if !book.Valid() {
				return nil, fmt.Errorf("rate: invalid book id %q", operands[0])
			}
			stars, err := strconv.Atoi(operands[1])
			if err != nil {
				return nil, fmt.Errorf("rate %s: stars must be a number: %w", book, err)
			}
			steps = append(steps, step{kind: stepRate, book: book, stars: stars})
		case "clear":
			book := domain.BookID(operands[0])
			if !book.Valid() {
				return nil, fmt.Errorf("clear: invalid book id %q", operands[0])
			}
			steps = append(steps, step{kind: stepClear, book: book})
		case "search":
			steps = append(steps, step{kind: stepSearch, query: operands[0]})
		}
	}
	return steps, nil
}
