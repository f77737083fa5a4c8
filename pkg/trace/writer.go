package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Writer emits trace records as JSON lines. Write errors are sticky:
// after the first failure every call reports it and Close returns it.
// Writer is not safe for concurrent use.
type Writer struct {
	bw  *bufio.Writer
	gz  *gzip.Writer
	cl  io.Closer
	enc *json.Encoder
	err error
}

// NewWriter wraps w in a buffered trace writer.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{bw: bw, enc: json.NewEncoder(bw)}
}

// NewCompressedWriter wraps w in a gzip-compressed trace writer.
func NewCompressedWriter(w io.Writer) *Writer {
	gz := gzip.NewWriter(w)
	bw := bufio.NewWriter(gz)
	return &Writer{bw: bw, gz: gz, enc: json.NewEncoder(bw)}
}

// Create opens path for writing, compressing when it ends in .gz. The
// returned writer owns the file and closes it on Close.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create trace file: %w", err)
	}
	var w *Writer
	if strings.HasSuffix(path, ".gz") {
		w = NewCompressedWriter(f)
	} else {
		w = NewWriter(f)
	}
	w.cl = f
	return w, nil
}

func (w *Writer) emit(r Record) error {
	if w.err != nil {
		return w.err
	}
	if err := w.enc.Encode(r); err != nil {
		w.err = fmt.Errorf("cannot encode trace record: %w", err)
	}
	return w.err
}

// Unit declares a unit under a stream-local id.
func (w *Writer) Unit(id uint32, name string) error {
	return w.emit(Record{Kind: KindUnit, Unit: id, Name: name})
}

// Func declares a function under a stream-local id, belonging to a
// previously declared unit.
func (w *Writer) Func(id, unit uint32, name string, firstLine int) error {
	return w.emit(Record{Kind: KindFunc, Func: id, Unit: unit, Name: name, Line: firstLine})
}

// Enter records thread tid entering function fn at the given line.
func (w *Writer) Enter(tid, t int64, fn uint32, line int) error {
	return w.emit(Record{Kind: KindEnter, Thread: tid, Time: t, Func: fn, Line: line})
}

// Step records thread tid moving to a new line in its current function.
func (w *Writer) Step(tid, t int64, line int) error {
	return w.emit(Record{Kind: KindStep, Thread: tid, Time: t, Line: line})
}

// Leave records thread tid returning from its current function.
func (w *Writer) Leave(tid, t int64) error {
	return w.emit(Record{Kind: KindLeave, Thread: tid, Time: t})
}

// Sample records a statistic stack observation for thread tid,
// innermost frame first.
func (w *Writer) Sample(tid, t int64, stack []Site) error {
	return w.emit(Record{Kind: KindSample, Thread: tid, Time: t, Stack: stack})
}

// Meta records a key/value annotation. The "cmd" key is conventional
// for the traced command line and is echoed into report headers.
func (w *Writer) Meta(key, value string) error {
	return w.emit(Record{Kind: KindMeta, Key: key, Value: value})
}

// Close flushes buffered records and releases the underlying file when
// the writer owns one.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil && w.err == nil {
		w.err = fmt.Errorf("cannot flush trace stream: %w", err)
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil && w.err == nil {
			w.err = fmt.Errorf("cannot close trace stream: %w", err)
		}
	}
	if w.cl != nil {
		if err := w.cl.Close(); err != nil && w.err == nil {
			w.err = fmt.Errorf("cannot close trace file: %w", err)
		}
	}
	return w.err
}
