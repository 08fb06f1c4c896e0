// Package catalog reads and writes product feed CSV batches. Feeds arrive
// with either semicolon or comma delimiters and a loosely stable column set,
// so parsing is forgiving about both.
package catalog

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Input column names used by supplier feeds.
const (
	ColImages      = "imagenes_producto"
	ColImagesAlt   = "URL"
	ColTitle       = "nombre_es"
	ColDescription = "descripcion_es"
	ColBody        = "cuerpo_es"
	ColType        = "tipo"
	ColReference   = "referencia"
	ColParent      = "padre"
	ColMerchantID  = "id_merchant"

	attrNamePrefix  = "nombre_atributo_"
	attrValuePrefix = "valor_atributo_"
)

// Output column names of a simplified batch.
const (
	OutTitle       = "titulo"
	OutDescription = "descripcion"
	OutBody        = "cuerpo_Es"
	OutAttributes  = "atributos"
	OutImages      = "imagenes_producto"
	OutCategory    = "categoria"
)

// OutputColumns is the fixed column order of simplified batches.
var OutputColumns = []string{OutTitle, OutDescription, OutBody, OutAttributes, OutImages, OutCategory}

// Row is one record keyed by header name.
type Row map[string]string

// Batch is a parsed CSV feed.
type Batch struct {
	Path   string
	Header []string
	Rows   []Row
}

// Read parses the CSV at path. The delimiter is sniffed from the first line,
// semicolon winning over comma. Rows shorter than the header are padded,
// longer ones truncated; header names are trimmed.
func Read(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch: %w", err)
	}
	defer f.Close()

	buffered := bufio.NewReader(f)
	firstLine, err := buffered.ReadString('\n')
	if err != nil && firstLine == "" {
		return nil, fmt.Errorf("read batch header: %w", err)
	}
	delimiter := ','
	if strings.ContainsRune(firstLine, ';') {
		delimiter = ';'
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("rewind batch: %w", err)
	}
	reader := csv.NewReader(f)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse batch: %w", err)
	}
	if len(records) == 0 {
		return &Batch{Path: path}, nil
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.TrimSpace(name)
	}

	batch := &Batch{Path: path, Header: header}
	for _, record := range records[1:] {
		row := make(Row, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

// Write serializes the batch to path with semicolon delimiters.
func (b *Batch) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	writer.Comma = ';'
	if err := writer.Write(b.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(b.Header))
	for _, row := range b.Rows {
		for i, name := range b.Header {
			record[i] = row[name]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}
	return f.Close()
}

// HasColumn reports whether the header carries name.
func (b *Batch) HasColumn(name string) bool {
	for _, h := range b.Header {
		if h == name {
			return true
		}
	}
	return false
}

// ImageColumn returns the column holding image URLs, preferring the feed
// name over the legacy one. Empty when neither exists.
func (b *Batch) ImageColumn() string {
	if b.HasColumn(ColImages) {
		return ColImages
	}
	if b.HasColumn(ColImagesAlt) {
		return ColImagesAlt
	}
	return ""
}

// PrimaryURLs returns the first image URL of every row, unfiltered. Callers
// decide fetchability.
func (b *Batch) PrimaryURLs() []string {
	col := b.ImageColumn()
	if col == "" {
		return nil
	}
	urls := make([]string, 0, len(b.Rows))
	for _, row := range b.Rows {
		urls = append(urls, PrimaryURL(row[col]))
	}
	return urls
}

// PrimaryURL extracts the first URL of a delimited image cell.
func PrimaryURL(cell string) string {
	urls := SplitImages(cell)
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

// SplitImages splits an image cell on semicolons when present, otherwise on
// commas. Some feeds use one, some the other.
func SplitImages(cell string) []string {
	sep := ","
	if strings.Contains(cell, ";") {
		sep = ";"
	}
	var urls []string
	for _, part := range strings.Split(cell, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}
