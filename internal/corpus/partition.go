package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	errMissingDocID = errors.New("corpus line missing doc_id")
	errMissingText  = errors.New("corpus line missing text")
)

// Range is a byte-addressed slice of the corpus file containing exactly
// BlockDocs complete lines (except possibly the last range, which may be
// shorter). Start aligns with the beginning of a line; End is one past the
// terminator of the range's last line.
type Range struct {
	BlockID int
	Start   int64
	End     int64
}

// Partitioner scans a corpus file once, producing Ranges of BlockDocs lines
// each. The file contents are never loaded into memory; only line
// terminators are scanned to find range boundaries, so cost is O(file bytes)
// here and O(block bytes) per worker that later reads its own range. The
// ranges are not emitted lazily: Ranges finishes the whole scan and returns
// every range as one slice before any block is dispatched.
type Partitioner struct {
	path      string
	blockDocs int
}

// NewPartitioner creates a Partitioner over path, grouping blockDocs lines
// per range.
func NewPartitioner(path string, blockDocs int) *Partitioner {
	if blockDocs <= 0 {
		blockDocs = 1
	}
	return &Partitioner{path: path, blockDocs: blockDocs}
}

// Ranges scans the corpus file and returns every Range in ascending
// block-id order. The scan only counts line terminators; it does not parse
// or validate records.
func (p *Partitioner) Ranges() ([]Range, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", p.path, err)
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, 1<<20)
	var ranges []Range
	var blockID int
	var blockStart int64
	var offset int64
	var linesInBlock int

	for {
		line, err := reader.ReadBytes('\n')
		offset += int64(len(line))
		if len(line) > 0 {
			linesInBlock++
		}
		if linesInBlock == p.blockDocs {
			ranges = append(ranges, Range{BlockID: blockID, Start: blockStart, End: offset})
			blockID++
			blockStart = offset
			linesInBlock = 0
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("scanning corpus %s: %w", p.path, err)
		}
	}
	if linesInBlock > 0 {
		ranges = append(ranges, Range{BlockID: blockID, Start: blockStart, End: offset})
	}
	return ranges, nil
}

// ReadLines opens path, seeks to r.Start, and invokes fn for every complete
// line within [r.Start, r.End). Workers use this to read only their own
// range instead of the whole corpus.
func ReadLines(path string, r Range, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening corpus %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(r.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to block start %d: %w", r.Start, err)
	}

	remaining := r.End - r.Start
	reader := bufio.NewReader(io.LimitReader(f, remaining))
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := line
			if trimmed[len(trimmed)-1] == '\n' {
				trimmed = trimmed[:len(trimmed)-1]
			}
			if len(trimmed) > 0 {
				if ferr := fn(trimmed); ferr != nil {
					return ferr
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading block: %w", err)
		}
	}
}
