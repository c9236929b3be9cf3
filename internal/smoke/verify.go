package smoke

import (
	"errors"
	"fmt"

	"github.com/agiraud1/radar-fr/internal/domain/types"
)

// Verify checks that ranking is ordered by score desc then company id, and
// that every generated company appears with its expected total and dominant
// type. A company missing from a full ranking is not an error since other
// data for the same day may outrank it. It returns the number of companies
// verified.
func Verify(plan Plan, ranking []types.ScoreEntry, limit int) (int, error) {
	var errs []error
	for i := 1; i < len(ranking); i++ {
		prev, cur := ranking[i-1], ranking[i]
		if prev.ScoreTotal < cur.ScoreTotal ||
			(prev.ScoreTotal == cur.ScoreTotal && prev.CompanyID > cur.CompanyID) {
			errs = append(errs, fmt.Errorf("%w: rank %d (%d, company %d) after (%d, company %d)",
				ErrMismatch, i+1, cur.ScoreTotal, cur.CompanyID, prev.ScoreTotal, prev.CompanyID))
		}
	}

	byReg := make(map[string]types.ScoreEntry, len(ranking))
	for _, e := range ranking {
		if e.RegistrationNumber != nil {
			byReg[*e.RegistrationNumber] = e
		}
	}

	verified := 0
	full := len(ranking) >= limit
	for _, c := range plan.Companies {
		got, ok := byReg[c.Registration]
		if !ok {
			if !full {
				errs = append(errs, fmt.Errorf("%w: %s (%s) not ranked", ErrMismatch, c.Name, c.Registration))
			}
			continue
		}
		want := c.Expected
		switch {
		case got.ScoreTotal != want.ScoreTotal:
			errs = append(errs, fmt.Errorf("%w: %s total %d, want %d", ErrMismatch, c.Registration, got.ScoreTotal, want.ScoreTotal))
		case got.TopSignalType != want.TopSignalType:
			errs = append(errs, fmt.Errorf("%w: %s top %s, want %s", ErrMismatch, c.Registration, got.TopSignalType, want.TopSignalType))
		case got.CompanyName != c.Name:
			errs = append(errs, fmt.Errorf("%w: %s name %q, want %q", ErrMismatch, c.Registration, got.CompanyName, c.Name))
		default:
			verified++
		}
	}
	return verified, errors.Join(errs...)
}
