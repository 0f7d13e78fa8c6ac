package ingest

import (
	"strings"

	"nebcli/pkg/contracts/domain"
)

// AliasSet declares, per role, the substrings that identify a source column.
// Matching is case-insensitive against trimmed header names; the first column
// in source order that contains any alias wins, so tie-breaking is by column
// position and nothing else.
type AliasSet map[domain.Role][]string

// DefaultAliases covers the column name variants seen across sheet exports.
func DefaultAliases() AliasSet {
	return AliasSet{
		domain.RoleDate:            {"date"},
		domain.RolePrimaryMetric:   {"price", "sales"},
		domain.RoleSecondaryMetric: {"profit"},
		domain.RoleCategory:        {"category"},
		domain.RoleRegion:          {"region"},
		domain.RoleDiscount:        {"discount"},
	}
}

// Merge overlays non-empty alias lists from other on top of the receiver.
func (a AliasSet) Merge(other AliasSet) AliasSet {
	out := make(AliasSet, len(a))
	for role, aliases := range a {
		out[role] = aliases
	}
	for role, aliases := range other {
		if len(aliases) > 0 {
			out[role] = aliases
		}
	}
	return out
}

// resolutionOrder fixes the order roles claim columns in. Date goes first so a
// header like "Sale Date" can never be claimed as a metric column.
var resolutionOrder = []domain.Role{
	domain.RoleDate,
	domain.RolePrimaryMetric,
	domain.RoleSecondaryMetric,
	domain.RoleCategory,
	domain.RoleRegion,
	domain.RoleDiscount,
}

// ResolveRoles maps semantic roles onto trimmed header names. Each column is
// claimed by at most one role. Required roles with no matching column produce
// a MappingError carrying the headers that were seen.
func (a AliasSet) ResolveRoles(headers []string, source string) (domain.RoleMap, error) {
	claimed := make([]bool, len(headers))
	roles := make(domain.RoleMap)

	for _, role := range resolutionOrder {
		for i, header := range headers {
			if claimed[i] {
				continue
			}
			if a.matches(role, header) {
				roles[role] = header
				claimed[i] = true
				break
			}
		}
	}

	for _, role := range domain.RequiredRoles {
		if !roles.Has(role) {
			return nil, &MappingError{Role: role, Source: source, Headers: headers}
		}
	}

	return roles, nil
}

func (a AliasSet) matches(role domain.Role, header string) bool {
	lower := strings.ToLower(header)
	for _, alias := range a[role] {
		if strings.Contains(lower, alias) {
			return true
		}
	}
	return false
}
