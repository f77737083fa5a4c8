package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// maxLine bounds a single trace record; sample stacks dominate record
// size and stay far below this.
const maxLine = 4 << 20

// Reader decodes trace records from a stream, transparently inflating
// gzip input. Decode errors carry the offending line number.
type Reader struct {
	sc   *bufio.Scanner
	line int
	cl   []io.Closer
}

// NewReader wraps r in a trace reader, sniffing for gzip framing.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("cannot read trace stream: %w", err)
	}
	var src io.Reader = br
	rd := &Reader{}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("cannot open compressed trace stream: %w", err)
		}
		rd.cl = append(rd.cl, gz)
		src = gz
	}
	rd.sc = bufio.NewScanner(src)
	rd.sc.Buffer(make([]byte, 64*1024), maxLine)
	return rd, nil
}

// Open opens the trace file at path. The returned reader owns the file
// and closes it on Close.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open trace file: %w", err)
	}
	rd, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	rd.cl = append(rd.cl, f)
	return rd, nil
}

// Next returns the next record in the stream, or io.EOF after the last
// one. Blank lines are skipped.
func (r *Reader) Next() (Record, error) {
	for r.sc.Scan() {
		r.line++
		raw := bytes.TrimSpace(r.sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return Record{}, fmt.Errorf("cannot decode trace line %d: %w", r.line, err)
		}
		if rec.Kind == "" {
			return Record{}, fmt.Errorf("cannot decode trace line %d: missing record kind", r.line)
		}
		return rec, nil
	}
	if err := r.sc.Err(); err != nil {
		return Record{}, fmt.Errorf("cannot read trace line %d: %w", r.line+1, err)
	}
	return Record{}, io.EOF
}

// Line returns the number of the most recently decoded line.
func (r *Reader) Line() int {
	return r.line
}

// Close releases the resources owned by the reader, innermost first.
func (r *Reader) Close() error {
	var first error
	for _, c := range r.cl {
		if err := c.Close(); err != nil && first == nil {
			first = fmt.Errorf("cannot close trace file: %w", err)
		}
	}
	return first
}
