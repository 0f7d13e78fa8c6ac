package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"nebcli/pkg/contracts/domain"
)

// Pipeline turns raw tabular sources into normalized datasets. It owns the
// alias configuration and date layouts but no table state; every call is a
// pure function of its input stream.
type Pipeline struct {
	logger  *slog.Logger
	aliases AliasSet
	layouts []string
}

// Config holds pipeline options. Zero values fall back to defaults.
type Config struct {
	Aliases     AliasSet
	DateLayouts []string
}

// DefaultDateLayouts lists the date formats accepted during coercion, tried in
// order. Exports always use the first one.
func DefaultDateLayouts() []string {
	return []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		time.RFC3339,
		"01/02/2006",
		"1/2/2006",
		"2006/01/02",
		"02-Jan-2006",
	}
}

// NewPipeline creates an ingestion pipeline with the given configuration.
func NewPipeline(logger *slog.Logger, cfg Config) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	aliases := DefaultAliases()
	if cfg.Aliases != nil {
		aliases = aliases.Merge(cfg.Aliases)
	}
	layouts := cfg.DateLayouts
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts()
	}
	return &Pipeline{
		logger:  logger,
		aliases: aliases,
		layouts: layouts,
	}
}

// Result pairs the normalized dataset with ingestion statistics.
type Result struct {
	Dataset     *domain.Dataset
	RowsSeen    int
	RowsDropped int
}

// Ingest parses a comma-delimited source with a header row and normalizes it.
// Row-level coercion failures drop the row; only an unreadable source or an
// unresolved required role is fatal.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader, source string) (*Result, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	// Sheet exports frequently lead with a UTF-8 BOM.
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(content))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}

	return p.IngestRecords(ctx, records, source)
}

// IngestRecords normalizes pre-split records (first record is the header row).
// The Excel path and tests share this entry point with Ingest.
func (p *Pipeline) IngestRecords(ctx context.Context, records [][]string, source string) (*Result, error) {
	if len(records) == 0 {
		return nil, &ParseError{Source: source, Err: fmt.Errorf("source has no rows")}
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	roles, err := p.aliases.ResolveRoles(headers, source)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	claimed := make(map[string]bool, len(roles))
	for _, col := range roles {
		claimed[col] = true
	}
	var passthrough []string
	for _, h := range headers {
		if !claimed[h] {
			passthrough = append(passthrough, h)
		}
	}

	dataset := &domain.Dataset{
		Roles:   roles,
		Columns: headers,
		Rows:    make([]domain.Row, 0, len(records)-1),
	}

	dropped := 0
	for _, record := range records[1:] {
		row, ok := p.coerceRecord(record, roles, index, passthrough)
		if !ok {
			dropped++
			continue
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	dataset.SortByDate()

	p.logger.InfoContext(ctx, "source normalized",
		slog.String("source", source),
		slog.Int("rows_kept", len(dataset.Rows)),
		slog.Int("rows_dropped", dropped),
		slog.Any("roles", roles))

	return &Result{
		Dataset:     dataset,
		RowsSeen:    len(records) - 1,
		RowsDropped: dropped,
	}, nil
}

// coerceRecord applies per-cell coercion. A row without a parseable date or
// primary metric is reported invalid; everything else degrades per cell.
func (p *Pipeline) coerceRecord(record []string, roles domain.RoleMap, index map[string]int, passthrough []string) (domain.Row, bool) {
	cell := func(role domain.Role) (string, bool) {
		col, ok := roles[role]
		if !ok {
			return "", false
		}
		i := index[col]
		if i >= len(record) {
			return "", false
		}
		return record[i], true
	}

	raw, ok := cell(domain.RoleDate)
	if !ok {
		return domain.Row{}, false
	}
	date, err := p.parseDate(raw)
	if err != nil {
		return domain.Row{}, false
	}

	raw, ok = cell(domain.RolePrimaryMetric)
	if !ok {
		return domain.Row{}, false
	}
	primary, err := parseDecimal(raw)
	if err != nil {
		return domain.Row{}, false
	}

	row := domain.Row{Date: date, Primary: primary}

	if raw, ok := cell(domain.RoleSecondaryMetric); ok {
		v, err := parseDecimal(raw)
		if err != nil {
			v = 0 // declared but unparseable
		}
		row.Secondary = &v
	}
	if raw, ok := cell(domain.RoleCategory); ok {
		if s := strings.TrimSpace(raw); s != "" {
			row.Category = &s
		}
	}
	if raw, ok := cell(domain.RoleRegion); ok {
		if s := strings.TrimSpace(raw); s != "" {
			row.Region = &s
		}
	}
	if raw, ok := cell(domain.RoleDiscount); ok {
		if v, err := parseDecimal(raw); err == nil {
			row.Discount = &v
		}
	}

	if len(passthrough) > 0 {
		row.Extra = make(map[string]string, len(passthrough))
		for _, col := range passthrough {
			if i, ok := index[col]; ok && i < len(record) {
				row.Extra[col] = record[i]
			}
		}
	}

	return row, true
}

// RowInput is a synthetic row collected by the external form layer. All fields
// arrive as text so manual inserts run through the same coercion as ingestion.
type RowInput struct {
	Date      string
	Primary   string
	Secondary string
	Category  string
	Region    string
}

// CoerceRow validates and coerces a single synthetic row against an existing
// role map. Unlike bulk ingestion there is no drop semantics here: a bad date
// or primary metric is an error the caller surfaces to the user.
func (p *Pipeline) CoerceRow(roles domain.RoleMap, in RowInput) (domain.Row, error) {
	date, err := p.parseDate(in.Date)
	if err != nil {
		return domain.Row{}, fmt.Errorf("invalid date %q: %w", in.Date, err)
	}
	primary, err := parseDecimal(in.Primary)
	if err != nil {
		return domain.Row{}, fmt.Errorf("invalid primary metric %q: %w", in.Primary, err)
	}

	row := domain.Row{Date: date, Primary: primary}

	if roles.Has(domain.RoleSecondaryMetric) {
		v, err := parseDecimal(in.Secondary)
		if err != nil {
			v = 0
		}
		row.Secondary = &v
	}
	if roles.Has(domain.RoleCategory) {
		if s := strings.TrimSpace(in.Category); s != "" {
			row.Category = &s
		}
	}
	if roles.Has(domain.RoleRegion) {
		if s := strings.TrimSpace(in.Region); s != "" {
			row.Region = &s
		}
	}

	return row, nil
}

// parseDate tries each configured layout in order.
func (p *Pipeline) parseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range p.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", s)
}

// parseDecimal parses a number after stripping formatting artifacts: currency
// symbols, thousands-separator commas and surrounding whitespace.
func parseDecimal(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '₹', '$', '€', '£', ',', ' ':
			return -1
		}
		return r
	}, s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	return v, nil
}
