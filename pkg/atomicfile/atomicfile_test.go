package atomicfile

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"mirrorsim/pkg/errors"
)

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "res.txt")
	err := WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "hello\n")
		return err
	})
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestWriteFileFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "res.txt")
	boom := stderrors.New("boom")
	err := WriteFile(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	if !stderrors.Is(err, boom) {
		t.Fatalf("expected fill error, got %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty directory, found %d entries", len(entries))
	}
}

func TestWriteFileKeepsOldContentOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "res.txt")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = WriteFile(path, func(io.Writer) error { return stderrors.New("fail") })
	data, _ := os.ReadFile(path)
	if string(data) != "old" {
		t.Errorf("target changed to %q", data)
	}
}

func TestWriteFileMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "res.txt")
	err := WriteFile(path, func(io.Writer) error { return nil })
	if !errors.IsIO(err) {
		t.Errorf("expected IO error, got %v", err)
	}
}

func TestConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "res.txt")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = WriteFile(path, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "writer %d\n", i)
				return err
			})
		}(i)
	}
	wg.Wait()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var n int
	if _, err := fmt.Sscanf(string(data), "writer %d\n", &n); err != nil {
		t.Errorf("content not from a single writer: %q", data)
	}
}
