package table

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	dirMode  = 0755
	fileMode = 0644
)

// WriteCSV writes a header row followed by one row per wallet.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnWallet, t.Column}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range t.Rows {
		if err := cw.Write([]string{r.Wallet, formatScore(r.Score)}); err != nil {
			return fmt.Errorf("writing csv row %s: %w", r.Wallet, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a table written by WriteCSV. The score column name is taken
// from the header.
func ReadCSV(r io.Reader) (*Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv header missing")
	}

	head := records[0]
	if len(head) != 2 || head[0] != ColumnWallet {
		return nil, fmt.Errorf("unexpected csv header %v", head)
	}

	t := &Table{Column: head[1], Precision: -1, Rows: make([]Row, 0, len(records)-1)}
	for i, rec := range records[1:] {
		s, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing score on line %d: %w", i+2, err)
		}
		t.Rows = append(t.Rows, Row{Wallet: rec[0], Score: s})
	}
	return t, nil
}

// WriteJSON writes the rows as an array of objects keyed by column name.
func (t *Table) WriteJSON(w io.Writer) error {
	key, err := json.Marshal(ColumnWallet)
	if err != nil {
		return fmt.Errorf("encoding wallet column name: %w", err)
	}
	col, err := json.Marshal(t.Column)
	if err != nil {
		return fmt.Errorf("encoding column name: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("[")
	for i, r := range t.Rows {
		addr, err := json.Marshal(r.Wallet)
		if err != nil {
			return fmt.Errorf("encoding wallet %s: %w", r.Wallet, err)
		}
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "\n  {%s: %s, %s: %s}", key, addr, col, formatScore(r.Score))
	}
	if len(t.Rows) > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString("]\n")

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("writing json: %w", err)
	}
	return nil
}

// ReadJSON reads a table written by WriteJSON.
func ReadJSON(r io.Reader) (*Table, error) {
	var list []map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding json table: %w", err)
	}

	t := &Table{Precision: -1, Rows: make([]Row, 0, len(list))}
	for i, item := range list {
		var row Row
		if err := json.Unmarshal(item[ColumnWallet], &row.Wallet); err != nil {
			return nil, fmt.Errorf("row %d: decoding %s: %w", i, ColumnWallet, err)
		}
		for k, v := range item {
			if k == ColumnWallet {
				continue
			}
			if t.Column != "" && t.Column != k {
				return nil, fmt.Errorf("row %d: unexpected column %q", i, k)
			}
			t.Column = k
			if err := json.Unmarshal(v, &row.Score); err != nil {
				return nil, fmt.Errorf("row %d: decoding %s: %w", i, k, err)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if t.Column == "" {
		t.Column = ColumnCreditScore
	}
	return t, nil
}

// WriteScoreMap writes a JSON object mapping each wallet to its integer
// score.
func (t *Table) WriteScoreMap(w io.Writer) error {
	m := make(map[string]int, len(t.Rows))
	for _, r := range t.Rows {
		m[r.Wallet] = int(math.RoundToEven(r.Score))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encoding score map: %w", err)
	}
	return nil
}

// WriteFile writes the table to path creating parent directories. A .csv
// extension selects CSV; anything else is written as a JSON score map when
// the table holds heuristic scores and as a JSON row array otherwise.
func (t *Table) WriteFile(path string) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return fmt.Errorf("creating output dir %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	switch {
	case strings.EqualFold(filepath.Ext(path), ".csv"):
		err = t.WriteCSV(f)
	case t.Column == ColumnCreditScore:
		err = t.WriteScoreMap(f)
	default:
		err = t.WriteJSON(f)
	}
	return err
}

func formatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
