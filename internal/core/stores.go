package core

import (
	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// SessionScanner lists the sessions under a logs root. storage.Scan is the
// production implementation; tests substitute failing or canned scanners.
type SessionScanner interface {
	Scan(logsRoot string) (*storage.ScanResult, error)
}

// ScannerFunc adapts a function to SessionScanner.
type ScannerFunc func(logsRoot string) (*storage.ScanResult, error)

func (f ScannerFunc) Scan(logsRoot string) (*storage.ScanResult, error) {
	return f(logsRoot)
}

// WriterOpener opens the durable writer for a session.
type WriterOpener interface {
	OpenWriter(session models.Session, opts ...storage.WriterOption) (storage.Writer, error)
}

// WriterOpenerFunc adapts a function to WriterOpener.
type WriterOpenerFunc func(session models.Session, opts ...storage.WriterOption) (storage.Writer, error)

func (f WriterOpenerFunc) OpenWriter(session models.Session, opts ...storage.WriterOption) (storage.Writer, error) {
	return f(session, opts...)
}

// DefaultScanner scans the filesystem.
var DefaultScanner SessionScanner = ScannerFunc(storage.Scan)

// DefaultWriterOpener opens file-backed writers.
var DefaultWriterOpener WriterOpener = WriterOpenerFunc(storage.OpenWriter)
