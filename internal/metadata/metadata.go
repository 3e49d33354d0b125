// Package metadata loads the document metadata side table.
//
// The table is semicolon separated UTF-8 with a header row. Rows are keyed by
// the canonical base name of a document: its file name with a recognized
// document extension removed, so "report", "report.md" and "report.pdf" all
// resolve to the same record.
package metadata

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/domain"
)

// Column names of the side table.
const (
	ColFilename    = "article_filename"
	ColArticleName = "article_name"
	ColIsArchived  = "is_archived"
	ColIsNews      = "is_news"
	ColArticleYear = "article_year"
)

// nullValue marks an absent filename or an unknown year.
const nullValue = "NULL"

var documentExts = map[string]struct{}{
	".md": {}, ".txt": {}, ".pdf": {}, ".doc": {}, ".docx": {},
}

// Record holds the structured attributes of one document.
type Record struct {
	ArticleName string
	IsArchived  *int
	IsNews      *int
	ArticleYear *int
}

// Empty reports whether no field is populated.
func (r Record) Empty() bool {
	return r.ArticleName == "" && r.IsArchived == nil && r.IsNews == nil && r.ArticleYear == nil
}

// CustomMetadata converts the populated fields into upload attributes.
func (r Record) CustomMetadata() []domain.CustomMetadata {
	var out []domain.CustomMetadata
	if r.ArticleName != "" {
		name := r.ArticleName
		out = append(out, domain.CustomMetadata{Key: ColArticleName, StringValue: &name})
	}
	appendNum := func(key string, v *int) {
		if v == nil {
			return
		}
		f := float64(*v)
		out = append(out, domain.CustomMetadata{Key: key, NumericValue: &f})
	}
	appendNum(ColIsArchived, r.IsArchived)
	appendNum(ColIsNews, r.IsNews)
	appendNum(ColArticleYear, r.ArticleYear)
	return out
}

// Table maps base names, as written in the side table, to records.
type Table map[string]Record

// Lookup finds the record for a file name. A row naming the file exactly
// wins; otherwise the row for the name without its document extension
// applies. Empty records are never returned.
func (t Table) Lookup(filename string) (Record, bool) {
	base := filepath.Base(strings.TrimSpace(filename))
	r, ok := t[base]
	if !ok {
		r, ok = t[CanonicalName(base)]
	}
	if !ok || r.Empty() {
		return Record{}, false
	}
	return r, true
}

// CanonicalName strips a recognized document extension from a base name.
func CanonicalName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := documentExts[ext]; ok {
		return strings.TrimSuffix(name, name[len(name)-len(ext):])
	}
	return name
}

// LoadFile reads the side table at path.
func LoadFile(path string, log *zap.Logger) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, log)
}

// LoadOrEmpty reads the side table, degrading to an empty table with a
// warning when the file is missing or unreadable.
func LoadOrEmpty(path string, log *zap.Logger) Table {
	if path == "" {
		log.Warn("no metadata table configured, continuing without metadata")
		return Table{}
	}
	t, err := LoadFile(path, log)
	if err != nil {
		log.Warn("could not load metadata table, continuing without metadata",
			zap.String("path", path), zap.Error(err))
		return Table{}
	}
	log.Info("loaded metadata", zap.String("path", path), zap.Int("documents", len(t)))
	return t
}

// Parse reads a table from r. Malformed rows are logged and skipped.
func Parse(r io.Reader, log *zap.Logger) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = ';'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	if _, ok := cols[ColFilename]; !ok {
		return nil, fmt.Errorf("missing %s column", ColFilename)
	}

	table := Table{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				log.Warn("skipping malformed metadata row", zap.Int("line", perr.Line), zap.Error(err))
				continue
			}
			return table, err
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		filename := field(ColFilename)
		if filename == "" || filename == nullValue {
			continue
		}
		rec := Record{
			ArticleName: field(ColArticleName),
			IsArchived:  parseFlag(field(ColIsArchived)),
			IsNews:      parseFlag(field(ColIsNews)),
		}
		if year := field(ColArticleYear); year != nullValue {
			rec.ArticleYear = parseFlag(year)
		}
		if rec.Empty() {
			continue
		}
		table[filepath.Base(filename)] = rec
	}
	return table, nil
}

// parseFlag returns nil for an empty value, the integer for an all-digit
// value and 0 for anything else.
func parseFlag(v string) *int {
	if v == "" {
		return nil
	}
	n := 0
	if isDigits(v) {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}
	return &n
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
