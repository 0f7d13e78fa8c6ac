package ingest

import (
	"fmt"
	"strings"

	"nebcli/pkg/contracts/domain"
)

// ParseError means the source itself was unreadable: no rows, a broken header,
// or inconsistent column counts. No partial table is returned.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("parse %s: unreadable source", e.Source)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// MappingError means a required role matched no column. It carries the headers
// that were seen so a human can diagnose which expected column is missing.
type MappingError struct {
	Role    domain.Role
	Source  string
	Headers []string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map %s: no column matches role %q (headers: %s)",
		e.Source, e.Role, strings.Join(e.Headers, ", "))
}
