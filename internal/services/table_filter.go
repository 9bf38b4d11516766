package services

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var (
	// ErrMissingColumns is reported for tables lacking a predicate column.
	ErrMissingColumns = errors.New("missing required columns")
	// ErrNoHeader is reported for tables without a header row.
	ErrNoHeader = errors.New("table has no header row")
	// ErrUnterminatedQuote is reported when a quoted field runs to the end of the table.
	ErrUnterminatedQuote = errors.New("quoted field is never closed")
)

// tabularExtensions maps recognized file extensions to their delimiter.
var tabularExtensions = map[string]rune{
	".csv": ',',
	".tsv": '\t',
}

// IsTabular reports whether path has a recognized tabular extension.
func IsTabular(path string) bool {
	_, ok := tabularExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// RowPredicate tests one column of a row. Missing values never match.
type RowPredicate struct {
	Column string
	desc   string
	match  func(string) bool
}

// Equals matches values exactly equal to want.
func Equals(column, want string) RowPredicate {
	return RowPredicate{
		Column: column,
		desc:   fmt.Sprintf("%s == %q", column, want),
		match:  func(v string) bool { return v == want },
	}
}

// Contains matches values containing substr. Case-sensitive.
func Contains(column, substr string) RowPredicate {
	return RowPredicate{
		Column: column,
		desc:   fmt.Sprintf("%s contains %q", column, substr),
		match:  func(v string) bool { return strings.Contains(v, substr) },
	}
}

// Match reports whether value satisfies the predicate. present is false when
// the row has no field for the column.
func (p RowPredicate) Match(value string, present bool) bool {
	if !present || value == "" {
		return false
	}
	return p.match(value)
}

func (p RowPredicate) String() string { return p.desc }

// FilterOutcome is the result of filtering one file.
type FilterOutcome string

const (
	OutcomeFiltered       FilterOutcome = "filtered"
	OutcomeMissingColumns FilterOutcome = "missing_columns"
	OutcomeParseError     FilterOutcome = "parse_error"
	OutcomeFailed         FilterOutcome = "failed"
)

// FilterResult reports what happened to one file.
type FilterResult struct {
	Path           string
	Outcome        FilterOutcome
	RowsRead       int
	RowsKept       int
	RowsSkipped    int // malformed rows dropped by the tolerant parser
	MissingColumns []string
	Err            error
}

// TableFilter rewrites delimited tables in place, keeping only the rows that
// satisfy every predicate.
type TableFilter struct {
	predicates []RowPredicate
	fallback   *charmap.Charmap
}

// NewTableFilter creates a filter. Bytes that are not valid UTF-8 are read as ISO-8859-1.
func NewTableFilter(predicates ...RowPredicate) *TableFilter {
	return &TableFilter{predicates: predicates, fallback: charmap.ISO8859_1}
}

// FilterDir filters every tabular file directly inside dir. Per-file failures
// are reported in the results; only a failure to list dir is returned.
func (f *TableFilter) FilterDir(ctx context.Context, dir string) ([]FilterResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsTabular(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	results := make([]FilterResult, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := f.FilterFile(path)
		logResult(res)
		results = append(results, res)
	}
	return results, nil
}

func logResult(res FilterResult) {
	logCtx := slog.With("file", res.Path)
	switch res.Outcome {
	case OutcomeFiltered:
		logCtx.Info("Filtered data saved.", "rowsRead", res.RowsRead, "rowsKept", res.RowsKept, "rowsSkipped", res.RowsSkipped)
	case OutcomeMissingColumns:
		logCtx.Warn("Missing columns. Skipping this file.", "missingColumns", res.MissingColumns)
	case OutcomeParseError:
		logCtx.Error("Parser error. Skipping this file.", "error", res.Err)
	default:
		logCtx.Error("Error processing file.", "error", res.Err)
	}
}

// FilterFile filters a single file. The file is only rewritten when every
// predicate column is present.
func (f *TableFilter) FilterFile(path string) FilterResult {
	res := FilterResult{Path: path}
	comma, ok := tabularExtensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		comma = ','
	}

	in, err := os.Open(path)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("failed to open %s: %w", path, err)
		return res
	}
	defer in.Close()

	reader := csv.NewReader(transform.NewReader(bufio.NewReader(in), newFallbackDecoder(f.fallback)))
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = ErrNoHeader
		}
		res.Outcome, res.Err = OutcomeParseError, fmt.Errorf("%s: %w", path, err)
		return res
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	columns, missing := f.resolveColumns(header)
	if len(missing) > 0 {
		res.Outcome, res.MissingColumns = OutcomeMissingColumns, missing
		res.Err = fmt.Errorf("%s: %w: %s", path, ErrMissingColumns, strings.Join(missing, ", "))
		return res
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("failed to create temp file: %w", err)
		return res
	}
	defer os.Remove(tmp.Name())
	if fi, err := in.Stat(); err == nil {
		_ = tmp.Chmod(fi.Mode().Perm())
	}

	if err := f.copyMatching(reader, header, columns, tmp, comma, &res); err != nil {
		_ = tmp.Close()
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("%s: %w", path, err)
		if errors.Is(err, ErrUnterminatedQuote) {
			res.Outcome = OutcomeParseError
		}
		return res
	}
	if err := tmp.Close(); err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("failed to close temp file: %w", err)
		return res
	}
	// Close the source before replacing it.
	_ = in.Close()
	if err := os.Rename(tmp.Name(), path); err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("failed to overwrite %s: %w", path, err)
		return res
	}
	res.Outcome = OutcomeFiltered
	return res
}

// resolveColumns maps each predicate to its header index.
func (f *TableFilter) resolveColumns(header []string) ([]int, []string) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	columns := make([]int, len(f.predicates))
	var missing []string
	for i, p := range f.predicates {
		idx, ok := index[p.Column]
		if !ok {
			missing = append(missing, p.Column)
			continue
		}
		columns[i] = idx
	}
	return columns, missing
}

func (f *TableFilter) copyMatching(reader *csv.Reader, header []string, columns []int, out io.Writer, comma rune, res *FilterResult) error {
	w := csv.NewWriter(out)
	w.Comma = comma
	if err := w.Write(header); err != nil {
		return err
	}

	// A quote error directly followed by EOF is a quoted field that was never
	// closed and absorbed every row after it.
	var openQuote *csv.ParseError
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			if openQuote != nil {
				return fmt.Errorf("%w: %w", ErrUnterminatedQuote, openQuote)
			}
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			openQuote = nil
			if errors.Is(perr.Err, csv.ErrQuote) {
				openQuote = perr
			}
			res.RowsSkipped++
			continue
		}
		if err != nil {
			return err
		}
		openQuote = nil
		if len(record) > len(header) {
			res.RowsSkipped++
			continue
		}
		res.RowsRead++
		if !f.matches(record, columns) {
			continue
		}
		// Short rows are padded with missing values.
		for len(record) < len(header) {
			record = append(record, "")
		}
		if err := w.Write(record); err != nil {
			return err
		}
		res.RowsKept++
	}
	w.Flush()
	return w.Error()
}

func (f *TableFilter) matches(record []string, columns []int) bool {
	for i, p := range f.predicates {
		idx := columns[i]
		present := idx < len(record)
		value := ""
		if present {
			value = record[idx]
		}
		if !p.Match(value, present) {
			return false
		}
	}
	return true
}
