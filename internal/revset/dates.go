package revset

import (
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/untoldecay/jjg/internal/jjgerr"
)

// defaultParseDate accepts an ISO-8601 date or date-time literal,
// comparing at midnight UTC for bare dates (spec.md §4.4 since()/
// between() semantics).
func defaultParseDate(lit string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, lit); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", lit); err == nil {
		return t, nil
	}
	return time.Time{}, jjgerr.New(jjgerr.KindInvalidRevset, "invalid date literal: "+lit).WithContext("text", lit)
}

// NewNaturalLanguageParser returns a ParseDate func that falls back to
// natural-language expressions ("yesterday", "2 weeks ago") via
// olebedev/when when the literal isn't a bare ISO-8601 date, per
// SPEC_FULL §4.4's domain-stack wiring for since()/between().
func NewNaturalLanguageParser(now time.Time) func(string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return func(lit string) (time.Time, error) {
		if t, err := defaultParseDate(lit); err == nil {
			return t, nil
		}
		r, err := w.Parse(lit, now)
		if err != nil || r == nil {
			return time.Time{}, jjgerr.New(jjgerr.KindInvalidRevset, "invalid date literal: "+lit).WithContext("text", lit)
		}
		return r.Time, nil
	}
}
