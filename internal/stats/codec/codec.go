// Package codec reads and writes day tables in their persisted CSV form.
//
// File format:
//
//	Time,Images Created/Min,Upload Latency,...
//	2014-07-01 00:00,0,,0,,0,3,12
//	2014-07-01 00:01,5,1444.0,...
//	... 1440 data lines in total
//
// Integers are written without a fractional part and floats always with one
// (or with an exponent), so a decoded table has the same value kinds as the
// encoded one. Unset fields are empty.
package codec

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"slices"
	"time"

	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/logging"
	"github.com/xtxerr/camstats/internal/stats/types"
)

// LabelLayout is the format of the time label that starts each data line.
const LabelLayout = "2006-01-02 15:04"

// Encode writes t as CSV: one header line, then one line per minute of the
// day labelled with key's date.
func Encode(w io.Writer, key types.Key, t *types.Table) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	cw.UseCRLF = true

	if err := cw.Write(types.Headers(t.RowLen())); err != nil {
		return errors.Wrap(err, "write header")
	}

	record := make([]string, t.RowLen()+1)
	for m := 0; m < types.MinutesPerDay; m++ {
		record[0] = types.MinuteLabel(key.Date, m)
		for i, v := range t.Row(m) {
			record[i+1] = v.String()
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write minute %d", m)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "flush csv")
	}
	return bw.Flush()
}

// Marshal returns the encoded form of t.
func Marshal(key types.Key, t *types.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, key, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a persisted table with rowLen value fields per line. source
// names the input in errors and log messages.
//
// A leading header line is optional: when the first record already starts
// with a time label it is decoded as data and a warning is logged. Any line
// with other than rowLen+1 fields, any unparseable value, and any data-line
// count other than 1440 yield a *errors.MalformedTableError.
func Decode(r io.Reader, source string, rowLen int) (*types.Table, error) {
	log := logging.Component("codec")

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	t := types.NewTable(rowLen)
	row := make(types.Row, rowLen)
	minute := 0
	first := true

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, errors.NewMalformedTable(source, line, "%v", err)
		}
		line, _ := cr.FieldPos(0)

		if first {
			first = false
			if !isLabel(record[0]) {
				if !slices.Equal(record, types.Headers(rowLen)) {
					log.Warn("unrecognized header", "path", source, "header", slices.Clone(record))
				}
				continue
			}
			log.Warn("no header row", "path", source)
		}

		if len(record) != rowLen+1 {
			return nil, errors.NewMalformedTable(source, line,
				"wrong number of fields: got %d, want %d", len(record), rowLen+1)
		}
		if minute >= types.MinutesPerDay {
			return nil, errors.NewMalformedTable(source, line,
				"more than %d data rows", types.MinutesPerDay)
		}

		for i, field := range record[1:] {
			v, err := types.ParseValue(field)
			if err != nil {
				return nil, errors.NewMalformedTable(source, line,
					"field %d: invalid number %q", i+2, field)
			}
			row[i] = v
		}
		if err := t.SetRow(minute, row); err != nil {
			return nil, errors.NewMalformedTable(source, line, "%v", err)
		}
		minute++
	}

	if minute != types.MinutesPerDay {
		return nil, errors.NewMalformedTable(source, 0,
			"wrong number of data rows: %d", minute)
	}
	return t, nil
}

// Unmarshal decodes data with Decode.
func Unmarshal(data []byte, source string, rowLen int) (*types.Table, error) {
	return Decode(bytes.NewReader(data), source, rowLen)
}

// ReadFile decodes the table stored at path. A missing file is reported with
// an error wrapping os.ErrNotExist.
func ReadFile(path string, rowLen int) (*types.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	return Decode(bufio.NewReader(f), path, rowLen)
}

// WriteFile encodes t to path, creating or truncating it and syncing it to
// stable storage before returning.
func WriteFile(path string, key types.Key, t *types.Table) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}

	if err := Encode(f, key, t); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode %s", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "sync %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

func isLabel(s string) bool {
	_, err := time.Parse(LabelLayout, s)
	return err == nil
}
