package assets

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

const defaultMaxBytes = 512 << 20

var (
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	ErrUnsafePath        = errors.New("archive entry escapes destination")
	ErrTooLarge          = errors.New("archive expands beyond size limit")
	ErrInvalidCRX        = errors.New("invalid crx header")
)

var crxMagic = []byte("Cr24")

// ArchiveExtractor unpacks zip, crx and (optionally compressed) tar payloads
type ArchiveExtractor struct {
	// MaxBytes caps the total uncompressed size written to disk
	MaxBytes int64
}

// NewArchiveExtractor creates an extractor with the default size limit
func NewArchiveExtractor() *ArchiveExtractor {
	return &ArchiveExtractor{MaxBytes: defaultMaxBytes}
}

// Extract implements Extractor
func (e *ArchiveExtractor) Extract(ctx context.Context, payload []byte, dest string) (Inventory, error) {
	format := detectFormat(payload)

	w := &writer{ctx: ctx, root: filepath.Clean(dest), budget: e.MaxBytes}
	if w.budget <= 0 {
		w.budget = defaultMaxBytes
	}
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return Inventory{}, err
	}

	var err error
	switch format {
	case "crx":
		var body []byte
		if body, err = stripCRX(payload); err == nil {
			err = w.unzip(body)
		}
	case "zip":
		err = w.unzip(payload)
	case "tar.gz":
		var zr *gzip.Reader
		if zr, err = gzip.NewReader(bytes.NewReader(payload)); err == nil {
			err = w.untar(zr)
			zr.Close()
		}
	case "tar.zst":
		var zr *zstd.Decoder
		if zr, err = zstd.NewReader(bytes.NewReader(payload)); err == nil {
			err = w.untar(zr)
			zr.Close()
		}
	case "tar":
		err = w.untar(bytes.NewReader(payload))
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimetype.Detect(payload).String())
	}
	if err != nil {
		return Inventory{}, err
	}

	inv, err := inventory(w.root)
	inv.Format = format
	return inv, err
}

// detectFormat maps a sniffed MIME type onto an unpacking strategy
func detectFormat(payload []byte) string {
	for m := mimetype.Detect(payload); m != nil; m = m.Parent() {
		switch {
		case m.Is("application/x-chrome-extension"):
			return "crx"
		case m.Is("application/zip"):
			return "zip"
		case m.Is("application/gzip"):
			return "tar.gz"
		case m.Is("application/zstd"):
			return "tar.zst"
		case m.Is("application/x-tar"):
			return "tar"
		}
	}
	if bytes.HasPrefix(payload, crxMagic) {
		return "crx"
	}
	return ""
}

// stripCRX returns the zip archive embedded in a Chrome extension package
func stripCRX(payload []byte) ([]byte, error) {
	if len(payload) < 12 || !bytes.HasPrefix(payload, crxMagic) {
		return nil, ErrInvalidCRX
	}

	var offset uint64
	switch version := binary.LittleEndian.Uint32(payload[4:8]); version {
	case 2:
		if len(payload) < 16 {
			return nil, ErrInvalidCRX
		}
		keyLen := binary.LittleEndian.Uint32(payload[8:12])
		sigLen := binary.LittleEndian.Uint32(payload[12:16])
		offset = 16 + uint64(keyLen) + uint64(sigLen)
	case 3:
		headerLen := binary.LittleEndian.Uint32(payload[8:12])
		offset = 12 + uint64(headerLen)
	default:
		return nil, fmt.Errorf("%w: version %d", ErrInvalidCRX, version)
	}

	if offset > uint64(len(payload)) {
		return nil, ErrInvalidCRX
	}
	return payload[offset:], nil
}

type writer struct {
	ctx    context.Context
	root   string
	budget int64
}

// target resolves an entry name under root. The root itself ("./" in
// archives packed with tar -C dir .) is a valid target.
func (w *writer) target(name string) (string, error) {
	path := filepath.Join(w.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return path, nil
}

func (w *writer) unzip(body []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	for _, file := range zr.File {
		if err := w.ctx.Err(); err != nil {
			return err
		}

		path, err := w.target(file.Name)
		if err != nil {
			return err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}
			continue
		}
		if !file.Mode().IsRegular() {
			continue
		}

		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", file.Name, err)
		}
		err = w.write(path, src, file.Mode().Perm())
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) untar(r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		if err := w.ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		path, err := w.target(header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := w.write(path, tr, fs.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		}
	}
}

func (w *writer) write(path string, src io.Reader, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	n, err := io.Copy(dst, io.LimitReader(src, w.budget+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	w.budget -= n
	if w.budget < 0 {
		return ErrTooLarge
	}
	return nil
}

// inventory counts regular files and bytes under root
func inventory(root string) (Inventory, error) {
	var files, size atomic.Int64

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files.Add(1)
		size.Add(info.Size())
		return nil
	})

	return Inventory{Files: files.Load(), Bytes: size.Load()}, err
}
