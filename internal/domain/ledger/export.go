package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Document is the export form of the ledger: every kind mapped to its
// entries in insertion order. Kinds without entries map to an empty list.
type Document map[Kind][]*Entry

// Export reads the whole ledger into a Document. It does not modify state.
func (l *Ledger) Export(ctx context.Context) (Document, error) {
	doc := make(Document, len(kinds))
	for _, kind := range kinds {
		entries, err := l.ListByKind(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		doc[kind] = entries
	}
	return doc, nil
}

// WriteJSON writes the document as indented JSON.
func (d Document) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// Len returns the number of entries across every kind.
func (d Document) Len() int {
	n := 0
	for _, entries := range d {
		n += len(entries)
	}
	return n
}
