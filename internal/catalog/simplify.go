package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProductText is the classifier input derived from one product row.
type ProductText struct {
	Title       string
	Description string
	BodySnippet string
}

// ClassifyFunc assigns categories to products, aligned by index. Entries may
// be empty when no category could be determined; simplification carries on
// regardless. Implementations are free to fan the work out.
type ClassifyFunc func(products []ProductText) []string

const bodySnippetRunes = 200

type product struct {
	row   Row
	attrs map[string]any
	body  string
}

// Simplify reduces a raw feed to one image URL per output row. Product rows
// keep their own attributes; model rows absorb the attributes of their
// variants, and variant rows themselves are not emitted. Rows without images
// are dropped. Every surviving product is classified before the image list is
// exploded.
func (b *Batch) Simplify(classify ClassifyFunc) (*Batch, error) {
	imageCol := b.ImageColumn()
	if imageCol == "" {
		return nil, fmt.Errorf("batch %s has no image column", b.Path)
	}
	pairs := attributePairs(b.Header)

	var products []product
	var models []product
	variantsByParent := make(map[string][]map[string]string)

	variantJoin := ColParent
	if !b.HasColumn(ColParent) {
		variantJoin = ColMerchantID
	}

	for _, row := range b.Rows {
		attrs := extractAttributes(row, pairs)

		kind := strings.ToUpper(strings.TrimSpace(row[ColType]))
		if kind == "" {
			kind = "P"
		}
		switch kind {
		case "V":
			if parent := strings.TrimSpace(row[variantJoin]); parent != "" {
				variantsByParent[parent] = append(variantsByParent[parent], attrs)
			}
		case "M":
			// Attrs resolved below once every variant is grouped.
			models = append(models, product{row: row, body: CleanHTML(row[ColBody])})
		default:
			products = append(products, product{row: row, attrs: stringAttributes(attrs), body: CleanHTML(row[ColBody])})
		}
	}

	// Second pass for models so variants later in the file still contribute.
	for i := range models {
		ref := strings.TrimSpace(models[i].row[ColReference])
		own := extractAttributes(models[i].row, pairs)
		models[i].attrs = mergeAttributes(own, variantsByParent[ref])
	}

	var kept []product
	for _, p := range append(products, models...) {
		if strings.TrimSpace(p.row[imageCol]) != "" {
			kept = append(kept, p)
		}
	}

	texts := make([]ProductText, len(kept))
	for i, p := range kept {
		texts[i] = ProductText{
			Title:       p.row[ColTitle],
			Description: p.row[ColDescription],
			BodySnippet: truncateRunes(p.body, bodySnippetRunes),
		}
	}
	categories := classify(texts)
	if len(categories) != len(kept) {
		return nil, fmt.Errorf("classifier returned %d categories for %d products", len(categories), len(kept))
	}

	out := &Batch{Path: b.Path, Header: append([]string(nil), OutputColumns...)}
	for i, p := range kept {
		encoded, err := json.Marshal(p.attrs)
		if err != nil {
			return nil, fmt.Errorf("encode attributes: %w", err)
		}
		for _, url := range SplitImages(p.row[imageCol]) {
			out.Rows = append(out.Rows, Row{
				OutTitle:       texts[i].Title,
				OutDescription: texts[i].Description,
				OutBody:        p.body,
				OutAttributes:  string(encoded),
				OutImages:      url,
				OutCategory:    categories[i],
			})
		}
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
