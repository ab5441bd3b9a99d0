// Package csvlog appends rows to CSV files on a persistent store. Files are
// only ever extended; the store handle is held for a single call.
package csvlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

var (
	ErrStoreUnavailable = errors.New("csvlog: store unavailable")
	ErrSchemaMismatch   = errors.New("csvlog: existing header does not match schema")
)

// Recorder observes appended rows.
type Recorder interface {
	RowsAppended(schema string, n int)
}

type Log struct {
	fs       afero.Fs
	log      zerolog.Logger
	recorder Recorder
}

func New(fs afero.Fs, logger zerolog.Logger) *Log {
	return &Log{fs: fs, log: logger}
}

func (l *Log) WithRecorder(r Recorder) *Log {
	l.recorder = r
	return l
}

func unavailable(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrStoreUnavailable, op, path, err)
}

// AppendRows opens path for append, writes the schema header if the file is
// empty and then each row as a single write. With flushEach the file is
// synced after every row, otherwise once before closing. It returns the
// number of rows written; rows written before an error remain in the file.
func (l *Log) AppendRows(path string, schema Schema, rows []Row, flushEach bool) (n int, err error) {
	f, err := l.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.log.Error().Err(err).Str("path", path).Msg("open for append failed")
		return 0, unavailable("open", path, err)
	}
	defer func() {
		if l.recorder != nil && n > 0 {
			l.recorder.RowsAppended(schema.Name, n)
		}
		if cerr := f.Close(); cerr != nil {
			err = multierr.Append(err, unavailable("close", path, cerr))
		}
	}()

	fi, err := f.Stat()
	if err != nil {
		return 0, unavailable("stat", path, err)
	}
	if schema.Header != "" {
		if fi.Size() == 0 {
			if _, err := io.WriteString(f, schema.Header+"\n"); err != nil {
				return 0, unavailable("write header", path, err)
			}
		} else if err := l.checkHeader(path, schema); err != nil {
			return 0, err
		}
	}

	for _, r := range rows {
		if _, err := io.WriteString(f, schema.Line(r)); err != nil {
			return n, unavailable("write", path, err)
		}
		n++
		if flushEach {
			if err := f.Sync(); err != nil {
				return n, unavailable("sync", path, err)
			}
		}
	}
	if !flushEach {
		if err := f.Sync(); err != nil {
			return n, unavailable("sync", path, err)
		}
	}
	l.log.Debug().Str("path", path).Int("rows", n).Msg("rows appended")
	return n, nil
}

// checkHeader verifies that a non-empty file starts with the schema header.
func (l *Log) checkHeader(path string, schema Schema) error {
	r, err := l.fs.Open(path)
	if err != nil {
		return unavailable("open", path, err)
	}
	defer r.Close()
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return unavailable("read header", path, err)
	}
	if line != schema.Header+"\n" {
		l.log.Error().Str("path", path).Str("want", schema.Header).Str("got", line).Msg("header mismatch")
		return fmt.Errorf("%w: %s", ErrSchemaMismatch, path)
	}
	return nil
}
