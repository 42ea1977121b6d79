package export

import (
	"archive/zip"
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrArchiveClosed is returned when an entry is added after Close.
var ErrArchiveClosed = errors.New("archive already finalized")

// Archive multiplexes named byte streams into one streamed ZIP container.
// Entries are written one after another; bytes reach the destination as
// they are produced.
type Archive struct {
	zw      *zip.Writer
	dst     io.Writer
	entries []string
	closed  bool
}

// NewArchive opens a ZIP stream on w using deflate at level.
// Levels outside flate's range fall back to flate.BestCompression.
func NewArchive(w io.Writer, level int) *Archive {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = flate.BestCompression
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	return &Archive{zw: zw, dst: w}
}

// Entry starts a new entry called name and returns a writer for its
// contents. The writer is valid until the next call to Entry, Append or Close.
func (a *Archive) Entry(name string) (io.Writer, error) {
	if a.closed {
		return nil, ErrArchiveClosed
	}
	fw, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create entry %s: %w", name, err)
	}
	a.entries = append(a.entries, name)

	// CreateHeader has closed the previous entry; push its tail out.
	if err := a.Flush(); err != nil {
		return nil, err
	}
	return fw, nil
}

// Append copies r into a new entry called name.
func (a *Archive) Append(name string, r io.Reader) error {
	fw, err := a.Entry(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}

// Flush pushes buffered archive bytes to the destination, including any
// HTTP response buffering.
func (a *Archive) Flush() error {
	if err := a.zw.Flush(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}
	return flushDestination(a.dst)
}

// Entries returns the entry names in the order they were added.
func (a *Archive) Entries() []string {
	return append([]string(nil), a.entries...)
}

// Close writes the central directory and flushes the destination. It does
// not close the destination.
func (a *Archive) Close() error {
	if a.closed {
		return ErrArchiveClosed
	}
	a.closed = true
	if err := a.zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return flushDestination(a.dst)
}

func flushDestination(w io.Writer) error {
	switch f := w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case http.ResponseWriter:
		if err := http.NewResponseController(f).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	case http.Flusher:
		f.Flush()
	}
	return nil
}
