// Package archive bundles a profiling result into a single zip:
// the callgrind rendering plus the source of every unit it references,
// laid out so callgrind viewers resolve sources directly from the
// extracted tree.
package archive

import (
	"archive/zip"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/lineprof/lineprof/pkg/profiler"
	"github.com/lineprof/lineprof/pkg/report"
)

// CallgrindName is the report entry at the bundle root, named so
// kcachegrind picks it up by convention.
const CallgrindName = "cachegrind.out.lineprof"

// Bundle writes the dataset and its sources as a zip archive. Unit
// paths are relativized inside the bundle, and units without
// retrievable source are listed in the report only.
func Bundle(w io.Writer, ds *profiler.Dataset, opts report.Options) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	opts.RelativePaths = true
	entry, err := zw.Create(CallgrindName)
	if err != nil {
		return fmt.Errorf("cannot create bundle entry %s: %w", CallgrindName, err)
	}
	if err := report.Callgrind(entry, ds, opts); err != nil {
		return err
	}

	seen := map[string]bool{CallgrindName: true}
	for _, u := range ds.Units {
		if u.Source == nil {
			continue
		}
		name := report.RelPath(u.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		entry, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("cannot create bundle entry %s: %w", name, err)
		}
		if err := writeSource(entry, u.Source); err != nil {
			return fmt.Errorf("cannot bundle source of %s: %w", u.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("cannot finalize bundle: %w", err)
	}
	return nil
}

func writeSource(w io.Writer, src profiler.SourceReader) error {
	for i := 1; i <= src.Len(); i++ {
		line, ok := src.Line(i)
		if !ok {
			break
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}
