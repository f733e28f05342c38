// Package feed opens ITCH capture files, transparently decompressing
// gzip, and fingerprints them so finished replays can be recognised.
package feed

import (
	"bufio"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

var gzipMagic = []byte{0x1f, 0x8b}

// closers closes in reverse order and reports the first failure.
type closers []io.Closer

func (cs closers) Close() error {
	var first error
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type file struct {
	io.Reader
	closers
}

type writeFile struct {
	io.Writer
	closers
}

// Open returns the message bytes of path. Gzip input is detected by its
// magic number, not by extension.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "feed: open")
	}
	br := bufio.NewReaderSize(f, 1<<16)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		f.Close()
		return nil, errors.Wrapf(err, "feed: read %s", path)
	}
	if len(head) == len(gzipMagic) && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "feed: gzip %s", path)
		}
		return &file{Reader: zr, closers: closers{f, zr}}, nil
	}
	return &file{Reader: br, closers: closers{f}}, nil
}

// Create opens path for writing, gzip compressed when the name ends in
// .gz.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "feed: create")
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zw := gzip.NewWriter(f)
	return &writeFile{Writer: zw, closers: closers{f, zw}}, nil
}

// Fingerprint is the hex blake3 digest of the raw file contents.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "feed: open")
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "feed: hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
