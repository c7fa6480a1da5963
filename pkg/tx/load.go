package tx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Decode reads a JSON array of transaction records.
func Decode(r io.Reader) ([]*RawTransaction, error) {
	if r == nil {
		return nil, errors.New("reader required")
	}

	var list []*RawTransaction
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding transactions: %w", err)
	}

	// a literal null entry in the array carries no record at all
	out := list[:0]
	for _, t := range list {
		if t != nil {
			out = append(out, t)
		}
	}

	return out, nil
}

// LoadFile reads transaction records from a JSON file.
func LoadFile(path string) ([]*RawTransaction, error) {
	if path == "" {
		return nil, errors.New("input file path required")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file %s: %w", path, err)
	}
	defer f.Close()

	list, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	slog.Debug("transactions loaded", "path", path, "count", len(list))
	return list, nil
}
