// Package snapshotfile lee snapshots históricos desde ficheros JSON.
//
// Formatos aceptados:
//   - array JSON: [{...}, {...}]
//   - JSON lines: un objeto por línea (lo que produce un volcado del recorder)
//
// Las líneas que no se pueden decodificar se registran y se saltan.
// La validación de precios y fechas la hace el backtest al preparar los datos.
package snapshotfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

const maxLineSize = 4 << 20

// record es el formato en disco de un snapshot.
type record struct {
	MarketID      string    `json:"market_id"`
	Question      string    `json:"question,omitempty"`
	OutcomePrices []float64 `json:"outcome_prices"`
	Liquidity     float64   `json:"liquidity"`
	Volume24h     float64   `json:"volume_24h"`
	EndDate       time.Time `json:"end_date,omitzero"`
	Timestamp     time.Time `json:"timestamp"`
}

func (r record) snapshot() domain.MarketSnapshot {
	return domain.MarketSnapshot{
		MarketID:      r.MarketID,
		Question:      r.Question,
		OutcomePrices: r.OutcomePrices,
		Liquidity:     r.Liquidity,
		Volume24h:     r.Volume24h,
		EndDate:       r.EndDate,
		Timestamp:     r.Timestamp,
	}
}

func fromSnapshot(s domain.MarketSnapshot) record {
	return record{
		MarketID:      s.MarketID,
		Question:      s.Question,
		OutcomePrices: s.OutcomePrices,
		Liquidity:     s.Liquidity,
		Volume24h:     s.Volume24h,
		EndDate:       s.EndDate,
		Timestamp:     s.Timestamp,
	}
}

// File implementa ports.SnapshotSource sobre un fichero.
type File struct {
	path string
}

// New crea una fuente sobre path. El fichero se abre en cada LoadSnapshots.
func New(path string) *File {
	return &File{path: path}
}

// Path devuelve la ruta del fichero.
func (f *File) Path() string { return f.path }

// LoadSnapshots lee el fichero y devuelve los snapshots con Timestamp en
// [from, to]. Un extremo vacío queda abierto.
func (f *File) LoadSnapshots(ctx context.Context, from, to time.Time) ([]domain.MarketSnapshot, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("snapshotfile.LoadSnapshots: %w", err)
	}
	defer fh.Close()

	br := bufio.NewReaderSize(fh, 64*1024)
	first, err := firstByte(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshotfile.LoadSnapshots: %s: %w", f.path, err)
	}

	inRange := func(ts time.Time) bool {
		if !from.IsZero() && ts.Before(from) {
			return false
		}
		if !to.IsZero() && ts.After(to) {
			return false
		}
		return true
	}

	var out []domain.MarketSnapshot
	if first == '[' {
		out, err = readArray(ctx, br, inRange)
	} else {
		out, err = readLines(ctx, br, f.path, inRange)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshotfile.LoadSnapshots: %s: %w", f.path, err)
	}

	slog.Debug("snapshotfile: loaded", "path", f.path, "snapshots", len(out))
	return out, nil
}

// firstByte devuelve el primer carácter no blanco sin consumirlo.
func firstByte(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func readArray(ctx context.Context, r io.Reader, keep func(time.Time) bool) ([]domain.MarketSnapshot, error) {
	dec := json.NewDecoder(r)
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading array start: %w", err)
	}

	var out []domain.MarketSnapshot
	for i := 0; dec.More(); i++ {
		if i%10_000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var rec record
		if err := dec.Decode(&rec); err != nil {
			// tras un error de sintaxis el decoder no puede seguir
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if keep(rec.Timestamp) {
			out = append(out, rec.snapshot())
		}
	}
	return out, nil
}

func readLines(ctx context.Context, r io.Reader, path string, keep func(time.Time) bool) ([]domain.MarketSnapshot, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var out []domain.MarketSnapshot
	line := 0
	for sc.Scan() {
		line++
		if line%10_000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			slog.Warn("snapshotfile: skipping unreadable line", "path", path, "line", line, "err", err)
			continue
		}
		if keep(rec.Timestamp) {
			out = append(out, rec.snapshot())
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteLines escribe los snapshots como JSON lines. Es el formato que
// LoadSnapshots lee de vuelta.
func WriteLines(w io.Writer, snaps []domain.MarketSnapshot) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, s := range snaps {
		if err := enc.Encode(fromSnapshot(s)); err != nil {
			return fmt.Errorf("snapshotfile.WriteLines: market %s: %w", s.MarketID, err)
		}
	}
	return bw.Flush()
}
