package shared

import (
	"strconv"
	"strings"
)

// Where accumulates AND-ed predicates with positional arguments.
type Where struct {
	clauses []string
	Args    []any
}

// Add appends a predicate. Each "?" in clause is replaced with the next $n.
func (w *Where) Add(clause string, args ...any) {
	for _, arg := range args {
		w.Args = append(w.Args, arg)
		clause = strings.Replace(clause, "?", "$"+strconv.Itoa(len(w.Args)), 1)
	}
	w.clauses = append(w.clauses, clause)
}

// Next returns the placeholder for an argument appended after the predicates.
func (w *Where) Next(arg any) string {
	w.Args = append(w.Args, arg)
	return "$" + strconv.Itoa(len(w.Args))
}

// SQL renders the WHERE clause, or an empty string.
func (w *Where) SQL() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
