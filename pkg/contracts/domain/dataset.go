package domain

import (
	"sort"
	"time"
)

// Role is a semantic purpose a source column is mapped to during ingestion.
type Role string

const (
	RoleDate            Role = "date"
	RolePrimaryMetric   Role = "primary_metric"
	RoleSecondaryMetric Role = "secondary_metric"
	RoleCategory        Role = "category"
	RoleRegion          Role = "region"
	RoleDiscount        Role = "discount"
)

// RequiredRoles are the roles ingestion must resolve for a source to be usable.
var RequiredRoles = []Role{RoleDate, RolePrimaryMetric}

// OptionalRoles are resolved when a matching column exists and skipped otherwise.
var OptionalRoles = []Role{RoleSecondaryMetric, RoleCategory, RoleRegion, RoleDiscount}

// RoleMap maps semantic roles to the source column name matched for each role.
// Only resolved roles are present.
type RoleMap map[Role]string

// Column returns the source column name for a role, or "" when unresolved.
func (m RoleMap) Column(role Role) string {
	return m[role]
}

// Has reports whether a role was resolved during ingestion.
func (m RoleMap) Has(role Role) bool {
	_, ok := m[role]
	return ok
}

// Row is a normalized record: it has passed role resolution and type coercion
// and is safe for aggregation. Optional fields are nil when their role was not
// resolved for the source. Extra holds passthrough columns verbatim.
type Row struct {
	Date      time.Time         `json:"date"`
	Primary   float64           `json:"primary_metric"`
	Secondary *float64          `json:"secondary_metric,omitempty"`
	Category  *string           `json:"category,omitempty"`
	Region    *string           `json:"region,omitempty"`
	Discount  *float64          `json:"discount,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Field returns the row's value for a source column name as a display string
// lookup key. It is used by export and by group-by/compare operations that
// address columns by their original names.
func (r Row) Field(column string, roles RoleMap) (string, bool) {
	switch column {
	case roles.Column(RoleCategory):
		if r.Category != nil {
			return *r.Category, true
		}
		return "", false
	case roles.Column(RoleRegion):
		if r.Region != nil {
			return *r.Region, true
		}
		return "", false
	}
	v, ok := r.Extra[column]
	return v, ok
}

// Dataset is the normalized table plus the metadata needed to label outputs
// and reproduce the source column order on export.
//
// Invariants: Rows are sorted ascending by Date (ties keep source order), every
// row has a valid Date and Primary metric, and rows are immutable once added.
// Mutation is limited to sorted appends and wholesale replacement; both are
// the caller's responsibility to serialize (one logical writer per session).
type Dataset struct {
	Roles   RoleMap  `json:"roles"`
	Columns []string `json:"columns"` // trimmed source headers, original order
	Rows    []Row    `json:"rows"`
}

// Len returns the number of normalized rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Primary returns the primary metric series in row order.
func (d *Dataset) Primary() []float64 {
	out := make([]float64, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Primary
	}
	return out
}

// InsertSorted inserts a row at its sorted position by date. Rows with an
// equal date are inserted after the existing ones, preserving relative order.
func (d *Dataset) InsertSorted(row Row) {
	i := sort.Search(len(d.Rows), func(i int) bool {
		return d.Rows[i].Date.After(row.Date)
	})
	d.Rows = append(d.Rows, Row{})
	copy(d.Rows[i+1:], d.Rows[i:])
	d.Rows[i] = row
}

// SortByDate stable-sorts rows ascending by date.
func (d *Dataset) SortByDate() {
	sort.SliceStable(d.Rows, func(i, j int) bool {
		return d.Rows[i].Date.Before(d.Rows[j].Date)
	})
}

// Clone returns a deep copy of the dataset. Handlers hand clones to encoders
// so a concurrent append can never race a serialization pass.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Roles:   make(RoleMap, len(d.Roles)),
		Columns: append([]string(nil), d.Columns...),
		Rows:    make([]Row, len(d.Rows)),
	}
	for k, v := range d.Roles {
		out.Roles[k] = v
	}
	for i, r := range d.Rows {
		out.Rows[i] = r.clone()
	}
	return out
}

func (r Row) clone() Row {
	out := r
	if r.Secondary != nil {
		v := *r.Secondary
		out.Secondary = &v
	}
	if r.Category != nil {
		v := *r.Category
		out.Category = &v
	}
	if r.Region != nil {
		v := *r.Region
		out.Region = &v
	}
	if r.Discount != nil {
		v := *r.Discount
		out.Discount = &v
	}
	if r.Extra != nil {
		out.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}
