package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/agiraud1/radar-fr/internal/domain/model"
)

// Dialect captures the differences between the SQL backends that matter to
// the shared query builders.
type Dialect struct {
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Date converts a calendar date to a bind argument.
	Date func(t time.Time) any
	// ILike is the case-insensitive LIKE operator.
	ILike string
}

// SignalFilterClause renders the WHERE clause (without the keyword) and args of
// a signal listing. The signal table must be aliased "s".
func SignalFilterClause(d Dialect, f model.SignalFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return d.Placeholder(len(args))
	}

	if q := strings.TrimSpace(f.Query); q != "" {
		conds = append(conds, fmt.Sprintf(`s.excerpt %s %s ESCAPE '\'`, d.ILike, next("%"+escapeLike(q)+"%")))
	}
	if f.Type != "" {
		conds = append(conds, "s.type = "+next(string(f.Type)))
	}
	if f.Label != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM signal_feedback f WHERE f.signal_id = s.id AND f.label = "+next(string(f.Label))+")")
	}
	if f.DateFrom != nil {
		conds = append(conds, "s.event_date >= "+next(d.Date(*f.DateFrom)))
	}
	if f.DateTo != nil {
		conds = append(conds, "s.event_date <= "+next(d.Date(*f.DateTo)))
	}
	if len(conds) == 0 {
		return "1=1", args
	}
	return strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
