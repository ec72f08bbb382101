package randset

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/holiman/uint256"

	"github.com/Janmajayamall/ulpsi/internal/preprocess"
)

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// SaveServerSet writes a benchmark server set as [count][item(32)
// label(32)]... so later CLI invocations can resample client sets with
// guaranteed overlap.
func SaveServerSet(path string, items []preprocess.Item) error {
	buf := new(bytes.Buffer)
	writeUint64(buf, uint64(len(items)))
	for _, it := range items {
		v := it.V.Bytes32()
		l := it.Label.Bytes32()
		buf.Write(v[:])
		buf.Write(l[:])
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// LoadServerSet is the inverse of SaveServerSet.
func LoadServerSet(path string) ([]preprocess.Item, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("randset: reading %s: %w", path, err)
	}
	r := bytes.NewReader(raw)
	n, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("randset: reading count: %w", err)
	}
	items := make([]preprocess.Item, n)
	for i := range items {
		var v, l [32]byte
		if _, err := io.ReadFull(r, v[:]); err != nil {
			return nil, fmt.Errorf("randset: reading item %d: %w", i, err)
		}
		if _, err := io.ReadFull(r, l[:]); err != nil {
			return nil, fmt.Errorf("randset: reading label %d: %w", i, err)
		}
		items[i] = preprocess.Item{V: new(uint256.Int).SetBytes(v[:]), Label: new(uint256.Int).SetBytes(l[:])}
	}
	return items, nil
}

// SaveClientSet writes a client item set as [count][item(32)]....
func SaveClientSet(path string, items []*uint256.Int) error {
	buf := new(bytes.Buffer)
	writeUint64(buf, uint64(len(items)))
	for _, v := range items {
		b := v.Bytes32()
		buf.Write(b[:])
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// LoadClientSet is the inverse of SaveClientSet.
func LoadClientSet(path string) ([]*uint256.Int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("randset: reading %s: %w", path, err)
	}
	r := bytes.NewReader(raw)
	n, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("randset: reading count: %w", err)
	}
	items := make([]*uint256.Int, n)
	for i := range items {
		var b [32]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("randset: reading item %d: %w", i, err)
		}
		items[i] = new(uint256.Int).SetBytes(b[:])
	}
	return items, nil
}
