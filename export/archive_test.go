package export

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}

	files := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		files[f.Name] = string(b)
	}
	return files
}

func TestArchive_AppendAndClose(t *testing.T) {
	var buf bytes.Buffer
	a := NewArchive(&buf, flate.BestCompression)

	if err := a.Append("users.csv", strings.NewReader("id\n1\n")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	w, err := a.Entry("orders.csv")
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}
	io.WriteString(w, "id,total\n7,9.5\n")

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	files := readZip(t, buf.Bytes())
	if len(files) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(files))
	}
	if files["users.csv"] != "id\n1\n" {
		t.Errorf("users.csv = %q", files["users.csv"])
	}
	if files["orders.csv"] != "id,total\n7,9.5\n" {
		t.Errorf("orders.csv = %q", files["orders.csv"])
	}

	if got := a.Entries(); len(got) != 2 || got[0] != "users.csv" || got[1] != "orders.csv" {
		t.Errorf("Entries = %v", got)
	}
}

func TestArchive_EntriesUseDeflate(t *testing.T) {
	var buf bytes.Buffer
	a := NewArchive(&buf, 42)

	a.Append("big.csv", strings.NewReader(strings.Repeat("same,row\n", 1000)))
	a.Close()

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	f := zr.File[0]
	if f.Method != zip.Deflate {
		t.Errorf("method = %d, want deflate", f.Method)
	}
	if f.CompressedSize64 >= f.UncompressedSize64 {
		t.Errorf("expected compression, got %d >= %d", f.CompressedSize64, f.UncompressedSize64)
	}
}

func TestArchive_StreamsBeforeClose(t *testing.T) {
	rec := httptest.NewRecorder()
	a := NewArchive(rec, flate.BestCompression)

	a.Append("first.csv", strings.NewReader("a\n1\n"))
	if _, err := a.Entry("second.csv"); err != nil {
		t.Fatalf("Entry failed: %v", err)
	}

	if rec.Body.Len() == 0 {
		t.Fatal("expected bytes to reach the destination before Close")
	}
	if !rec.Flushed {
		t.Error("expected the response to be flushed")
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK\x03\x04")) {
		t.Error("expected a local file header at the start of the stream")
	}
}

func TestArchive_AppendAfterClose(t *testing.T) {
	a := NewArchive(io.Discard, flate.BestCompression)
	a.Close()

	if err := a.Append("late.csv", strings.NewReader("x")); !errors.Is(err, ErrArchiveClosed) {
		t.Errorf("expected ErrArchiveClosed, got %v", err)
	}
	if err := a.Close(); !errors.Is(err, ErrArchiveClosed) {
		t.Errorf("expected ErrArchiveClosed on double close, got %v", err)
	}
}

func TestArchive_EmptyArchive(t *testing.T) {
	var buf bytes.Buffer
	a := NewArchive(&buf, flate.BestCompression)
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if files := readZip(t, buf.Bytes()); len(files) != 0 {
		t.Errorf("expected no entries, got %d", len(files))
	}
}
