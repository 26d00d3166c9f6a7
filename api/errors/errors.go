package errors

import (
	"fmt"
	"sort"
	"strings"
)

// MultiErrors collects failures keyed by entity, e.g. account id.
type MultiErrors struct {
	Errors map[string][]ErrorInfo
}

type ErrorInfo struct {
	Message  string
	RawError error
}

func NewMultiErrors() *MultiErrors {
	return &MultiErrors{
		Errors: make(map[string][]ErrorInfo),
	}
}

func (e *MultiErrors) Add(key, message string, err error) {
	e.Errors[key] = append(e.Errors[key], ErrorInfo{
		Message:  message,
		RawError: err,
	})
}

func (e *MultiErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Count returns the number of keys with at least one error.
func (e *MultiErrors) Count() int {
	return len(e.Errors)
}

func (e *MultiErrors) Error() string {
	keys := make([]string, 0, len(e.Errors))
	for key := range e.Errors {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		for _, info := range e.Errors[key] {
			parts = append(parts, fmt.Sprintf("%s: %s", key, info.Message))
		}
	}
	return strings.Join(parts, " | ")
}
