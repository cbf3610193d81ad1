// Package fastq writes decoded read blocks as FASTQ and reads FASTQ
// records back.
package fastq

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Writer emits ordered blocks of decoded records to one output file,
// plain or gzipped. Blocks must be written in global read order.
type Writer struct {
	f   *os.File
	bw  *bufio.Writer
	gz  *gzip.Writer
	out io.Writer
}

// NewWriter opens path for FASTQ output. With gzipOut the stream is
// gzip-compressed at the given level.
func NewWriter(path string, gzipOut bool, level int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("opening output file: %w", err)
	}
	w := &Writer{f: f, bw: bufio.NewWriterSize(f, 1<<20)}
	w.out = w.bw
	if gzipOut {
		gz, err := gzip.NewWriterLevel(w.bw, level)
		if err != nil {
			f.Close() //nolint:errcheck,gosec // constructor failure path
			return nil, fmt.Errorf("creating gzip writer: %w", err)
		}
		w.gz = gz
		w.out = gz
	}
	return w, nil
}

// WriteBlock writes n records. Id lines are written as stored (leading
// '@' included). With quality preserved, records are the four-line FASTQ
// form; otherwise two-line records are emitted.
func (w *Writer) WriteBlock(ids, reads, quals [][]byte, n int, withQuality bool) error {
	for i := range n {
		buf := make([]byte, 0, len(ids[i])+len(reads[i])+8)
		buf = append(buf, ids[i]...)
		buf = append(buf, '\n')
		buf = append(buf, reads[i]...)
		buf = append(buf, '\n')
		if withQuality {
			buf = append(buf, '+', '\n')
			buf = append(buf, quals[i]...)
			buf = append(buf, '\n')
		}
		if _, err := w.out.Write(buf); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the output.
func (w *Writer) Close() error {
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			w.f.Close() //nolint:errcheck,gosec // flush error takes precedence
			return fmt.Errorf("closing gzip stream: %w", err)
		}
	}
	if err := w.bw.Flush(); err != nil {
		w.f.Close() //nolint:errcheck,gosec // flush error takes precedence
		return fmt.Errorf("flushing output: %w", err)
	}
	return w.f.Close()
}
