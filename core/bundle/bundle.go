// Package bundle packs a standoff document into a single compressed tar
// archive holding the XML tree, the plain text, the annotation records and
// a manifest of content hashes.
package bundle

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/standoffconverter/core/cas"
	"github.com/FocuswithJustin/standoffconverter/core/errors"
	"github.com/FocuswithJustin/standoffconverter/core/standoff"
	"github.com/FocuswithJustin/standoffconverter/internal/logging"
	"github.com/FocuswithJustin/standoffconverter/internal/validation"
)

// Archive member names.
const (
	ManifestFile    = "manifest.json"
	DocumentFile    = "document.xml"
	PlainFile       = "plain.txt"
	AnnotationsFile = "annotations.json"
)

// Injectable functions for testing
var (
	gzipNewWriterLevel = gzip.NewWriterLevel
	xzNewWriter        = xz.NewWriter
	gzipNewReader      = gzip.NewReader
	xzNewReader        = xz.NewReader
	timeNow            = time.Now
	newID              = func() string { return uuid.New().String() }
)

// Compression specifies the compression algorithm for bundle archives.
type Compression string

const (
	// CompressionXZ uses XZ/LZMA2 compression (default, best ratio).
	CompressionXZ Compression = "xz"
	// CompressionGzip uses gzip compression (stdlib, faster).
	CompressionGzip Compression = "gzip"
)

// ParseCompression maps a configuration value to a Compression. The empty
// string selects the default.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionXZ:
		return CompressionXZ, nil
	case CompressionGzip:
		return CompressionGzip, nil
	}
	return "", errors.NewUnsupported("compression", s)
}

// Options configures bundle packing.
type Options struct {
	// Compression specifies the compression algorithm. Defaults to XZ.
	Compression Compression
}

// DefaultOptions returns the default packing options (XZ compression).
func DefaultOptions() *Options {
	return &Options{Compression: CompressionXZ}
}

// Bundle is an unpacked archive.
type Bundle struct {
	Manifest *Manifest
	Store    *standoff.Store
	// Document is the stored XML. The Store is rebuilt from the records,
	// so it may differ from this in whitespace placement only.
	Document []byte
}

// Pack writes s as a bundle to w and returns the manifest it wrote.
func Pack(w io.Writer, s *standoff.Store, opts *Options) (*Manifest, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	members, err := encodeMembers(s)
	if err != nil {
		return nil, err
	}
	m := newManifest(s, opts.Compression, members)
	manifestData, err := m.ToJSON()
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize manifest")
	}

	var compressWriter io.WriteCloser
	switch opts.Compression {
	case CompressionGzip:
		compressWriter, err = gzipNewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create gzip writer")
		}
	case CompressionXZ, "":
		compressWriter, err = xzNewWriter(w)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create xz writer")
		}
	default:
		return nil, errors.NewUnsupported("compression", string(opts.Compression))
	}

	tw := tar.NewWriter(compressWriter)
	if err := writeToTar(tw, ManifestFile, manifestData); err != nil {
		return nil, errors.Wrap(err, "failed to write manifest")
	}
	for _, name := range memberOrder {
		if err := writeToTar(tw, name, members[name]); err != nil {
			return nil, errors.Wrapf(err, "failed to write %s", name)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close tar writer")
	}
	if err := compressWriter.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close compressor")
	}

	logging.Info("bundle packed",
		"id", m.ID,
		"compression", m.Compression,
		"annotations", m.Annotations,
	)
	return m, nil
}

// PackFile writes s as a bundle to path.
func PackFile(path string, s *standoff.Store, opts *Options) (*Manifest, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.NewIO("create", path, err)
	}
	m, err := Pack(file, s, opts)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, errors.NewIO("close", path, err)
	}
	return m, nil
}

var memberOrder = []string{DocumentFile, PlainFile, AnnotationsFile}

func encodeMembers(s *standoff.Store) (map[string][]byte, error) {
	var doc bytes.Buffer
	if err := s.Save(&doc); err != nil {
		return nil, err
	}
	records, err := standoff.MarshalRecords(s.Records())
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize annotations")
	}
	return map[string][]byte{
		DocumentFile:    doc.Bytes(),
		PlainFile:       []byte(s.Plain()),
		AnnotationsFile: records,
	}, nil
}

// DetectCompression inspects the magic bytes at the start of an archive.
func DetectCompression(magic []byte) (Compression, error) {
	if len(magic) < 2 {
		return "", errors.NewValidation("archive", "file too small to detect compression")
	}

	// gzip magic (1f 8b)
	if magic[0] == 0x1f && magic[1] == 0x8b {
		return CompressionGzip, nil
	}

	// XZ magic (fd 37 7a 58 5a 00)
	if len(magic) >= 6 && bytes.Equal(magic[:6], []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}) {
		return CompressionXZ, nil
	}

	return "", errors.NewUnsupported("compression format", "unknown magic bytes")
}

// Unpack reads a bundle, verifies every member against the manifest and
// rebuilds the Store from the annotation records.
func Unpack(r io.Reader) (*Bundle, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(6)
	compression, err := DetectCompression(magic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to detect compression")
	}

	var decompressReader io.Reader
	switch compression {
	case CompressionGzip:
		gzReader, err := gzipNewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create gzip reader")
		}
		defer gzReader.Close()
		decompressReader = gzReader
	case CompressionXZ:
		xzReader, err := xzNewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create xz reader")
		}
		decompressReader = xzReader
	}

	files, err := readTar(tar.NewReader(decompressReader))
	if err != nil {
		return nil, err
	}

	manifestData, ok := files[ManifestFile]
	if !ok {
		return nil, errors.NewNotFound("bundle member", ManifestFile)
	}
	m, err := ParseManifest(manifestData)
	if err != nil {
		return nil, err
	}
	for _, name := range memberOrder {
		data, ok := files[name]
		if !ok {
			return nil, errors.NewNotFound("bundle member", name)
		}
		if err := cas.Verify(data, m.Members[name]); err != nil {
			return nil, errors.NewCorruption("unpack", fmt.Sprintf("%s: %v", name, err))
		}
	}

	records, err := standoff.UnmarshalRecords(files[AnnotationsFile])
	if err != nil {
		return nil, errors.NewParse("JSON", AnnotationsFile, err.Error())
	}
	s, err := standoff.FromRecords(string(files[PlainFile]), records)
	if err != nil {
		return nil, errors.Wrap(err, "failed to rebuild document")
	}
	if fp := s.Fingerprint(); fp != m.Plain {
		return nil, errors.NewCorruption("unpack", "plain text fingerprint does not match manifest")
	}
	if len(s.Annotations()) != m.Annotations {
		return nil, errors.NewCorruption("unpack",
			fmt.Sprintf("manifest lists %d annotations, records hold %d", m.Annotations, len(s.Annotations())))
	}

	logging.Info("bundle unpacked", "id", m.ID, "annotations", m.Annotations)
	return &Bundle{Manifest: m, Store: s, Document: files[DocumentFile]}, nil
}

// UnpackFile reads the bundle at path.
func UnpackFile(path string) (*Bundle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer file.Close()
	return Unpack(file)
}

func readTar(tr *tar.Reader) (map[string][]byte, error) {
	files := make(map[string][]byte)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return nil, errors.NewValidation("member", err.Error())
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read tar header")
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if err := validation.ValidateMemberName(header.Name); err != nil {
			return nil, errors.NewValidation("member", err.Error())
		}
		if err := validation.CheckSize(header.Name, header.Size); err != nil {
			return nil, errors.NewValidation("member", err.Error())
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", header.Name)
		}
		files[header.Name] = data
	}
	return files, nil
}

// writeToTar writes a file to the tar archive.
func writeToTar(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: timeNow().UTC(),
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	_, err := tw.Write(data)
	return err
}
