package index

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// On-disk layout:
//
//	magic[8] | version uint16 BE | sha256[32] of payload | payload
//
// payload is gzip-compressed JSON of fileBody.
var magic = [8]byte{'S', 'M', 'R', 'T', 'I', 'D', 'X', 0}

const formatVersion uint16 = 1

const headerLen = len(magic) + 2 + sha256.Size

type fileHeader struct {
	FormatVersion uint16    `json:"format_version"`
	Model         string    `json:"model"`
	Dimension     int       `json:"dimension"`
	Count         int       `json:"count"`
	BuiltAt       time.Time `json:"built_at"`
}

type fileBody struct {
	Header  fileHeader `json:"header"`
	Entries []Entry    `json:"entries"`
}

// Expect is what the running process requires of a loaded index. Zero
// fields are not checked.
type Expect struct {
	Model     string
	Dimension int
}

// Save writes the index atomically: readers of path see either the old
// file or the complete new one.
func (ix *Index) Save(path string) error {
	var payload bytes.Buffer
	zw := gzip.NewWriter(&payload)
	body := fileBody{
		Header: fileHeader{
			FormatVersion: formatVersion,
			Model:         ix.meta.Model,
			Dimension:     ix.meta.Dimension,
			Count:         ix.meta.Count,
			BuiltAt:       ix.meta.BuiltAt,
		},
		Entries: ix.entries,
	}
	if err := json.NewEncoder(zw).Encode(body); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	defer os.Remove(tmp.Name())

	sum := sha256.Sum256(payload.Bytes())
	var version [2]byte
	binary.BigEndian.PutUint16(version[:], formatVersion)

	for _, chunk := range [][]byte{magic[:], version[:], sum[:], payload.Bytes()} {
		if _, err := tmp.Write(chunk); err != nil {
			tmp.Close()
			return fmt.Errorf("write index: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Load reads an index written by Save. Every failure, including a model or
// dimension mismatch with expect, is an *IndexUnavailableError.
func Load(path string, expect Expect) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, unavailable(path, "no index file; run `samarth index build`", err)
		}
		return nil, unavailable(path, "read failed", err)
	}

	ix, err := decode(raw)
	if err != nil {
		return nil, unavailable(path, "corrupt index", err)
	}

	if expect.Model != "" && ix.meta.Model != expect.Model {
		return nil, unavailable(path, fmt.Sprintf("built with embedding model %q, configured model is %q",
			ix.meta.Model, expect.Model), nil)
	}
	if expect.Dimension > 0 && ix.meta.Count > 0 && ix.meta.Dimension != expect.Dimension {
		return nil, unavailable(path, fmt.Sprintf("index dimension %d, embedder dimension %d",
			ix.meta.Dimension, expect.Dimension), nil)
	}
	return ix, nil
}

func decode(raw []byte) (*Index, error) {
	if len(raw) < headerLen {
		return nil, fmt.Errorf("file too short (%d bytes)", len(raw))
	}
	if !bytes.Equal(raw[:len(magic)], magic[:]) {
		return nil, errors.New("not an index file")
	}
	version := binary.BigEndian.Uint16(raw[len(magic):])
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported format version %d", version)
	}

	want := raw[len(magic)+2 : headerLen]
	payload := raw[headerLen:]
	if got := sha256.Sum256(payload); !bytes.Equal(got[:], want) {
		return nil, errors.New("checksum mismatch")
	}

	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	defer zr.Close()

	var body fileBody
	if err := json.NewDecoder(zr).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if body.Header.Count != len(body.Entries) {
		return nil, fmt.Errorf("header count %d, found %d entries", body.Header.Count, len(body.Entries))
	}

	ix, err := New(body.Header.Model, body.Entries, body.Header.BuiltAt)
	if err != nil {
		return nil, err
	}
	if ix.meta.Dimension != body.Header.Dimension {
		return nil, fmt.Errorf("header dimension %d, vectors have %d", body.Header.Dimension, ix.meta.Dimension)
	}
	return ix, nil
}
