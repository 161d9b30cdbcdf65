package archive

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

var (
	ErrUnsupportedVersion = errors.New("archive: unsupported document version")
	ErrCorruptSnapshot    = errors.New("archive: corrupt snapshot")
)

// Header is the first line of a snapshot. It can be read without decoding
// the body.
type Header struct {
	Version int    `json:"version"`
	Seed    uint32 `json:"seed"`
	Digest  string `json:"digest"`
	Nodes   int    `json:"nodes"`
}

// HeaderOf returns the snapshot header for a document.
func HeaderOf(doc *Document) Header {
	return Header{
		Version: doc.Version,
		Seed:    doc.Seed,
		Digest:  doc.Digest,
		Nodes:   len(doc.Nodes),
	}
}

// EncodeSnapshot writes a zstd stream holding the JSON header line followed
// by the JSON document.
func EncodeSnapshot(w io.Writer, doc Document) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)
	hb, _ := json.Marshal(HeaderOf(&doc))
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(&doc); err != nil {
		enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// MarshalSnapshot returns the compressed snapshot bytes.
func MarshalSnapshot(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeSnapshot(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSnapshot writes a compressed snapshot file, creating parent directories.
func WriteSnapshot(path string, doc Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := EncodeSnapshot(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DecodeSnapshot reads a snapshot stream. The header must agree with the
// document it precedes.
func DecodeSnapshot(r io.Reader) (Header, Document, error) {
	var (
		hdr Header
		doc Document
	)

	dec, err := zstd.NewReader(r)
	if err != nil {
		return hdr, doc, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return hdr, doc, fmt.Errorf("%w: header: %v", ErrCorruptSnapshot, err)
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		return hdr, doc, fmt.Errorf("%w: header: %v", ErrCorruptSnapshot, err)
	}
	if hdr.Version != Version {
		return hdr, doc, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, hdr.Version)
	}

	if err := json.NewDecoder(br).Decode(&doc); err != nil {
		return hdr, doc, fmt.Errorf("%w: body: %v", ErrCorruptSnapshot, err)
	}
	if HeaderOf(&doc) != hdr {
		return hdr, doc, fmt.Errorf("%w: header does not match body", ErrCorruptSnapshot)
	}
	return hdr, doc, nil
}

// ReadSnapshot reads a snapshot file written by WriteSnapshot.
func ReadSnapshot(path string) (Header, Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, Document{}, err
	}
	defer f.Close()
	return DecodeSnapshot(f)
}
