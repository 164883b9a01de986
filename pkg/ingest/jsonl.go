package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"mercator-hq/claimaudit/pkg/record"
)

// WriteJSONL writes one JSON object per row. Keys follow column order. Null
// values are written as JSON null and times as RFC 3339 strings.
func WriteJSONL(w io.Writer, f *record.Frame) error {
	bw := bufio.NewWriter(w)
	names := f.Columns()
	keys := make([][]byte, len(names))
	cols := make([][]record.Value, len(names))
	for i, name := range names {
		k, err := json.Marshal(name)
		if err != nil {
			return err
		}
		keys[i] = k
		cols[i], _ = f.Column(name)
	}

	var line bytes.Buffer
	for r := 0; r < f.Len(); r++ {
		line.Reset()
		line.WriteByte('{')
		for c := range names {
			if c > 0 {
				line.WriteByte(',')
			}
			line.Write(keys[c])
			line.WriteByte(':')
			if err := appendJSON(&line, cols[c][r]); err != nil {
				return fmt.Errorf("row %d column %q: %w", r, names[c], err)
			}
		}
		line.WriteString("}\n")
		if _, err := bw.Write(line.Bytes()); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}
	return bw.Flush()
}

func appendJSON(buf *bytes.Buffer, v record.Value) error {
	var x any
	switch v.Kind() {
	case record.KindNull:
		buf.WriteString("null")
		return nil
	case record.KindNumber:
		f, _ := v.Float()
		buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	case record.KindBool:
		b, _ := v.Truth()
		x = b
	case record.KindTime:
		t, _ := v.Moment()
		x = t.Format(time.RFC3339)
	case record.KindList:
		x = v.Items()
	default:
		x = v.Text()
	}
	b, err := json.Marshal(x)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// ReadJSONL reads objects written by WriteJSONL. Columns appear in the order
// their keys are first seen; rows lacking a key hold null for it. Strings that
// parse as RFC 3339 stay strings.
func ReadJSONL(r io.Reader) (*record.Frame, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, readBufferSize), 16*1024*1024)

	var (
		names []string
		index = make(map[string]int)
		rows  []map[int]record.Value
		line  int
	)
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		row, err := decodeObject(data, func(key string) int {
			if i, ok := index[key]; ok {
				return i
			}
			index[key] = len(names)
			names = append(names, key)
			return len(names) - 1
		})
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan input: %w", err)
	}

	cols := make([][]record.Value, len(names))
	for c := range cols {
		cols[c] = make([]record.Value, len(rows))
		for r, row := range rows {
			cols[c][r] = row[c]
		}
	}
	return record.FromColumns(names, cols)
}

var errNotObject = errors.New("expected a JSON object")

func decodeObject(data []byte, column func(string) int) (map[int]record.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errNotObject
	}

	row := make(map[int]record.Value)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errNotObject
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		v, err := fromJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		row[column(key)] = v
	}
	return row, nil
}

func fromJSON(raw any) (record.Value, error) {
	switch x := raw.(type) {
	case nil:
		return record.Null(), nil
	case string:
		return record.String(x), nil
	case bool:
		return record.Bool(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return record.Null(), err
		}
		return record.Number(f), nil
	case []any:
		items := make([]string, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return record.Null(), fmt.Errorf("list item %d is %T, want string", i, item)
			}
			items[i] = s
		}
		return record.List(items), nil
	default:
		return record.Null(), fmt.Errorf("unsupported JSON value %T", raw)
	}
}
