package store

import (
	"strings"

	"clinic-app-server/internal/models"
)

// MaxSearchResults caps every principal search.
const MaxSearchResults = 50

// SearchField is a principal column that can be searched.
type SearchField string

const (
	FieldName  SearchField = "name"
	FieldEmail SearchField = "email"
	FieldPhone SearchField = "phone"
)

// Predicate is a case-insensitive substring match on one field.
type Predicate struct {
	Field SearchField
	Value string
}

// SearchFilter is a disjunction of predicates. An empty filter matches everything.
type SearchFilter struct {
	Predicates []Predicate
}

// NewSearchFilter builds a filter from free text q and the targeted name, email
// and phone parameters. q matches any of the three fields. Blank inputs are ignored.
func NewSearchFilter(q, name, email, phone string) SearchFilter {
	var f SearchFilter
	if text := strings.TrimSpace(q); text != "" {
		f.Predicates = append(f.Predicates,
			Predicate{Field: FieldName, Value: text},
			Predicate{Field: FieldEmail, Value: text},
			Predicate{Field: FieldPhone, Value: text},
		)
	}
	for _, p := range []Predicate{{FieldName, name}, {FieldEmail, email}, {FieldPhone, phone}} {
		if v := strings.TrimSpace(p.Value); v != "" {
			f.Predicates = append(f.Predicates, Predicate{Field: p.Field, Value: v})
		}
	}
	return f
}

// TrimQuotes removes one pair of surrounding double quotes, as sent by some
// clients that quote the whole search term.
func TrimQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}

// IsEmpty reports whether the filter matches every record.
func (f SearchFilter) IsEmpty() bool {
	return len(f.Predicates) == 0
}

// Matches evaluates the filter against a principal in memory.
func (f SearchFilter) Matches(p *models.Principal) bool {
	if f.IsEmpty() {
		return true
	}
	for _, pred := range f.Predicates {
		var value string
		switch pred.Field {
		case FieldName:
			value = p.Name
		case FieldEmail:
			value = p.Email
		case FieldPhone:
			value = p.Phone
		}
		if strings.Contains(strings.ToLower(value), strings.ToLower(pred.Value)) {
			return true
		}
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// sqlCondition renders the filter as a SQL WHERE fragment with LIKE patterns.
// Wildcards in user input are escaped with the default LIKE escape character.
func (f SearchFilter) sqlCondition() (string, []interface{}) {
	if f.IsEmpty() {
		return "", nil
	}
	conds := make([]string, 0, len(f.Predicates))
	args := make([]interface{}, 0, len(f.Predicates))
	for _, pred := range f.Predicates {
		conds = append(conds, "LOWER("+string(pred.Field)+") LIKE ?")
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(pred.Value))+"%")
	}
	return strings.Join(conds, " OR "), args
}
