// Package csvdb is the on-disk CSV database replays write to:
//
//	dir
//	 |- books/aapl.csv
//	 |- messages/aapl.csv
//	 |- trades/aapl.csv
//	 |- noii/aapl.csv
//	 |- system/system.csv
//
// One file per ticker and record family. Files are shared by every replay
// writing into the database; rows carry the date of the capture they came
// from.
package csvdb

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var tables = []string{"books", "messages", "trades", "noii", "system"}

// Build scaffolds a database at dir. Existing tables are kept.
func Build(dir string) error {
	for _, t := range tables {
		if err := os.MkdirAll(filepath.Join(dir, t), 0o755); err != nil {
			return errors.Wrap(err, "csvdb: build")
		}
	}
	return nil
}

// Teardown deletes the database at dir. It refuses to delete a directory
// that does not look like a database.
func Teardown(dir string) error {
	if !isDatabase(dir) {
		return errors.Errorf("csvdb: %s is not a database", dir)
	}
	return errors.Wrap(os.RemoveAll(dir), "csvdb: teardown")
}

func isDatabase(dir string) bool {
	for _, t := range tables {
		fi, err := os.Stat(filepath.Join(dir, t))
		if err != nil || !fi.IsDir() {
			return false
		}
	}
	return true
}

// DB hands out table files to sinks. Appends to one file are serialized
// so rows from concurrent replays never interleave.
type DB struct {
	dir string

	mu    sync.Mutex
	files map[string]*table
}

type table struct {
	mu sync.Mutex
	f  *os.File
}

// Open opens a database built with Build.
func Open(dir string) (*DB, error) {
	if !isDatabase(dir) {
		return nil, errors.Errorf("csvdb: %s is not a database, build it first", dir)
	}
	return &DB{dir: dir, files: map[string]*table{}}, nil
}

func (db *DB) Dir() string { return db.dir }

// table opens tbl/name.csv, writing header if the file is new.
func (db *DB) table(tbl, name string, header []string) (*table, error) {
	path := filepath.Join(db.dir, tbl, strings.ToLower(name)+".csv")

	db.mu.Lock()
	defer db.mu.Unlock()
	if t, ok := db.files[path]; ok {
		return t, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "csvdb: open table")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "csvdb: stat table")
	}
	if fi.Size() == 0 {
		if _, err := f.Write(encodeRow(header)); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "csvdb: write header")
		}
	}
	t := &table{f: f}
	db.files[path] = t
	return t, nil
}

func (t *table) append(b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.f.Write(b)
	return err
}

// Close closes every table file. Sinks must be flushed first.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	var first error
	for path, t := range db.files {
		if err := t.f.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "csvdb: close %s", path)
		}
		delete(db.files, path)
	}
	return first
}
