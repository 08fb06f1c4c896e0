package catalog

import (
	"sort"
	"strings"
)

// attrPair links a nombre_atributo_N column to its valor_atributo_N partner.
type attrPair struct {
	nameCol  string
	valueCol string
}

// attributePairs finds the attribute column pairs present in the header.
func attributePairs(header []string) []attrPair {
	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[col] = true
	}
	var pairs []attrPair
	for _, col := range header {
		if !strings.HasPrefix(col, attrNamePrefix) {
			continue
		}
		parts := strings.Split(col, "_")
		suffix := parts[len(parts)-1]
		valueCol := attrValuePrefix + suffix
		if present[valueCol] {
			pairs = append(pairs, attrPair{nameCol: col, valueCol: valueCol})
		}
	}
	return pairs
}

// extractAttributes pulls the row's attribute key/value pairs, dropping blank
// and placeholder keys.
func extractAttributes(row Row, pairs []attrPair) map[string]string {
	attrs := make(map[string]string)
	for _, pair := range pairs {
		key := strings.TrimSpace(row[pair.nameCol])
		value := strings.TrimSpace(row[pair.valueCol])
		switch strings.ToLower(key) {
		case "", "nan", "none":
			continue
		}
		attrs[key] = value
	}
	return attrs
}

// mergeAttributes folds variant attribute maps into the parent's. A key seen
// with one distinct value stays a string; several distinct values become a
// sorted list.
func mergeAttributes(parent map[string]string, variants []map[string]string) map[string]any {
	collected := make(map[string]map[string]struct{})
	note := func(key, value string) {
		if _, ok := collected[key]; !ok {
			collected[key] = make(map[string]struct{})
		}
		if value != "" {
			collected[key][value] = struct{}{}
		}
	}
	for key, value := range parent {
		note(key, value)
	}
	for _, attrs := range variants {
		for key, value := range attrs {
			note(key, value)
		}
	}

	merged := make(map[string]any, len(collected))
	for key, values := range collected {
		list := make([]string, 0, len(values))
		for value := range values {
			list = append(list, value)
		}
		sort.Strings(list)
		switch len(list) {
		case 0:
			merged[key] = ""
		case 1:
			merged[key] = list[0]
		default:
			merged[key] = list
		}
	}
	return merged
}

// stringAttributes widens a plain attribute map for JSON encoding.
func stringAttributes(attrs map[string]string) map[string]any {
	widened := make(map[string]any, len(attrs))
	for key, value := range attrs {
		widened[key] = value
	}
	return widened
}
