// Package corpus partitions the line-delimited JSON input file into
// fixed-document-count byte ranges without materializing it, and decodes
// individual document records within a range.
package corpus

import "encoding/json"

// Document is one record of the input corpus: one JSON object per line.
type Document struct {
	DocID string `json:"doc_id"`
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

// ParseLine decodes a single corpus line into a Document. A malformed line
// or one missing a required field (doc_id, text) returns an error; the
// caller is expected to skip and count the rejection, not treat it as fatal
// (§7 input errors).
func ParseLine(line []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(line, &doc); err != nil {
		return Document{}, err
	}
	if doc.DocID == "" {
		return Document{}, errMissingDocID
	}
	if doc.Text == "" {
		return Document{}, errMissingText
	}
	return doc, nil
}
