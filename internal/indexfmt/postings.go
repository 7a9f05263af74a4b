package indexfmt

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Posting is one (doc_uid, tf) entry in a term's postings list.
type Posting struct {
	DocUID uint64
	TF     int
}

// MarshalJSON encodes a Posting as the two-element array the on-disk format
// uses: [doc_uid, tf].
func (p Posting) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint64{p.DocUID, uint64(p.TF)})
}

// UnmarshalJSON decodes a [doc_uid, tf] pair into a Posting.
func (p *Posting) UnmarshalJSON(data []byte) error {
	var pair [2]uint64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	p.DocUID = pair[0]
	p.TF = int(pair[1])
	return nil
}

// EncodePostingLine renders one postings-file line: "term\tJSON(postings)\n".
func EncodePostingLine(term string, postings []Posting) ([]byte, error) {
	payload, err := json.Marshal(postings)
	if err != nil {
		return nil, fmt.Errorf("marshaling postings for term %q: %w", term, err)
	}
	var buf bytes.Buffer
	buf.Grow(len(term) + len(payload) + 2)
	buf.WriteString(term)
	buf.WriteByte('\t')
	buf.Write(payload)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// DecodePostingLine parses one postings-file line (without its trailing
// newline) into its term and posting list.
func DecodePostingLine(line []byte) (string, []Posting, error) {
	idx := bytes.IndexByte(line, '\t')
	if idx < 0 {
		return "", nil, fmt.Errorf("malformed postings line: no tab separator")
	}
	term := string(line[:idx])
	var postings []Posting
	if err := json.Unmarshal(line[idx+1:], &postings); err != nil {
		return "", nil, fmt.Errorf("unmarshaling postings for term %q: %w", term, err)
	}
	return term, postings, nil
}

// TermOffset locates one term's line within index.postings.
type TermOffset struct {
	Offset int64 `json:"0"`
	Length int64 `json:"1"`
}

// MarshalJSON encodes a TermOffset as a [offset, length] pair, matching
// spec.md §6's "object mapping term to [offset, length]".
func (t TermOffset) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{t.Offset, t.Length})
}

// UnmarshalJSON decodes a [offset, length] pair into a TermOffset.
func (t *TermOffset) UnmarshalJSON(data []byte) error {
	var pair [2]int64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	t.Offset = pair[0]
	t.Length = pair[1]
	return nil
}

// TermMap is the in-memory and on-disk form of index.terms.json.
type TermMap map[string]TermOffset
