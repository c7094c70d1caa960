package domain

import (
	"fmt"
	"strings"
)

// ParseSource maps a user-supplied name onto a known Source.
func ParseSource(name string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(name)))
	if !ValidSources[s] {
		return "", NewValidationError("source", name, ErrUnknownSource)
	}
	return s, nil
}

// ValidateSearch checks the arguments shared by every collector.
func ValidateSearch(keyword string, limit, minScore int) error {
	if strings.TrimSpace(keyword) == "" {
		return NewValidationError("keyword", keyword, ErrInvalidArgument)
	}
	if limit <= 0 {
		return NewValidationError("limit", fmt.Sprintf("%d", limit), ErrInvalidArgument)
	}
	if minScore < 0 {
		return NewValidationError("min_score", fmt.Sprintf("%d", minScore), ErrInvalidArgument)
	}
	return nil
}

// Validate checks the persistence invariants of a Record.
func Validate(r Record) error {
	if strings.TrimSpace(r.ID) == "" {
		return NewValidationError("id", r.ID, ErrInvalidRecord)
	}
	if !ValidSources[r.Source] {
		return NewValidationError("source", string(r.Source), ErrUnknownSource)
	}
	if r.Score < 0 {
		return NewValidationError("score", fmt.Sprintf("%d", r.Score), ErrInvalidRecord)
	}
	return nil
}
