package eventlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
)

type csvFormat struct{}

func (csvFormat) encode(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Header()); err != nil {
		return nil, err
	}
	for _, ev := range events {
		if err := w.Write(record(ev)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (csvFormat) decode(data []byte) ([]Event, error) {
	r := csv.NewReader(bytes.NewReader(data))

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	cols, err := locate(header)
	if err != nil {
		return nil, err
	}

	var events []Event
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ev, err := cols.parse(cells)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
