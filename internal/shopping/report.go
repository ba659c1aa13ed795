package shopping

import "fmt"

const (
	Title        = "Shopping list"
	EmptyMessage = "Shopping list is empty"
)

// Entry is one consolidated line of a shopping list. Index is 1-based.
type Entry struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
	Unit   string `json:"unit"`
}

// String formats the entry as "3. Flour 450 g.".
func (e Entry) String() string {
	return fmt.Sprintf("%d. %s %d %s.", e.Index, e.Name, e.Amount, e.Unit)
}

// Report is a built shopping list. A nil or zero Report is an empty list.
type Report struct {
	Entries []Entry `json:"entries"`
}

// Empty reports whether the list has no entries.
func (r *Report) Empty() bool {
	return r == nil || len(r.Entries) == 0
}

// Lines returns the printable form of the report: a title followed by one
// line per entry, or the single empty-list message.
func (r *Report) Lines() []string {
	if r.Empty() {
		return []string{EmptyMessage}
	}
	out := make([]string, 0, len(r.Entries)+1)
	out = append(out, Title)
	for _, e := range r.Entries {
		out = append(out, e.String())
	}
	return out
}
