// Package export streams persisted CSV files back out unchanged.
package export

import (
	"bufio"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	// ChunkSize is the copy granularity used by StreamFile.
	ChunkSize = 256

	// MissingFileCSV is written instead of file contents when the file cannot
	// be opened, so consumers still receive well-formed CSV.
	MissingFileCSV = "error,message\r\n,Could not open file\r\n"
)

type Exporter struct {
	fs  afero.Fs
	log zerolog.Logger
}

func New(fs afero.Fs, logger zerolog.Logger) *Exporter {
	return &Exporter{fs: afero.NewReadOnlyFs(fs), log: logger}
}

// StreamFile copies the bytes of path to sink verbatim. Nothing but CSV is
// ever written to sink; diagnostics go to the exporter's logger.
func (e *Exporter) StreamFile(path string, sink io.Writer) error {
	f, err := e.open(path)
	if err != nil {
		e.log.Warn().Err(err).Str("path", path).Msg("export: open failed")
		_, werr := io.WriteString(sink, MissingFileCSV)
		return werr
	}
	defer f.Close()

	buf := make([]byte, ChunkSize)
	n, err := io.CopyBuffer(onlyWriter{sink}, onlyReader{f}, buf)
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	e.log.Debug().Str("path", path).Int64("bytes", n).Msg("export done")
	return nil
}

// Dump writes a human-readable listing of path for debugging.
func (e *Exporter) Dump(path string, w io.Writer) error {
	f, err := e.open(path)
	if err != nil {
		_, werr := fmt.Fprintf(w, "[-] open for read failed: %s\n", path)
		return werr
	}
	defer f.Close()

	if _, err := fmt.Fprintf(w, "[*] contents of %s:\n", path); err != nil {
		return err
	}
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if _, werr := io.WriteString(w, line); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("dump %s: %w", path, err)
		}
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// open opens path for reading. Directories are refused like missing files.
func (e *Exporter) open(path string) (afero.File, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err == nil && fi.IsDir() {
		err = fmt.Errorf("%s is a directory", path)
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// onlyReader and onlyWriter hide ReaderFrom/WriterTo so io.CopyBuffer
// honours the fixed chunk size.
type onlyReader struct{ io.Reader }

type onlyWriter struct{ io.Writer }
