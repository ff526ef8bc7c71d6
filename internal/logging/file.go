package logging

import (
	"io"
	"os"

	"github.com/dmitrijs2005/herpsync/internal/filex"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions controls the rotating log file used by the client daemon.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewRotatingWriter returns a size-rotated writer for opts.Path. An empty
// path yields stderr.
func NewRotatingWriter(opts FileOptions) (io.WriteCloser, error) {
	if opts.Path == "" {
		return nopCloser{os.Stderr}, nil
	}
	path, err := filex.EnsureParentDir(opts.Path)
	if err != nil {
		return nil, err
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
