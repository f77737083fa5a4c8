package profiler

import (
	"os"
	"strings"
	"sync"
)

// SourceReader provides the text of a unit's lines for annotation and
// archive bundling. Lines are 1-based and carry no trailing newline.
type SourceReader interface {
	// Line returns line n; ok is false past the end of the source.
	Line(n int) (line string, ok bool)

	// Len returns the number of lines.
	Len() int
}

// StringSource serves source text held in memory.
type StringSource []string

// NewStringSource splits text into a StringSource.
func NewStringSource(text string) StringSource {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return StringSource(strings.Split(text, "\n"))
}

// Line implements SourceReader.
func (s StringSource) Line(n int) (string, bool) {
	if n < 1 || n > len(s) {
		return "", false
	}
	return strings.TrimSuffix(s[n-1], "\r"), true
}

// Len implements SourceReader.
func (s StringSource) Len() int {
	return len(s)
}

// FileSource reads a file on first use and caches its lines. A file that
// cannot be read behaves as empty, so annotation degrades to stats-only
// rows instead of failing.
type FileSource struct {
	path  string
	once  sync.Once
	lines StringSource
}

// NewFileSource returns a lazy source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the file path the source reads from.
func (f *FileSource) Path() string {
	return f.path
}

func (f *FileSource) load() {
	f.once.Do(func() {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return
		}
		f.lines = NewStringSource(string(data))
	})
}

// Line implements SourceReader.
func (f *FileSource) Line(n int) (string, bool) {
	f.load()
	return f.lines.Line(n)
}

// Len implements SourceReader.
func (f *FileSource) Len() int {
	f.load()
	return f.lines.Len()
}
