package eventlog

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Sheet1"

type xlsxFormat struct{}

func (xlsxFormat) encode(events []Event) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	header := Header()
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &row); err != nil {
		return nil, err
	}

	for i, ev := range events {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{ev.TimestampMs, ev.Label, nil}
		if ev.ProbGood != nil {
			values[2] = *ev.ProbGood
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (xlsxFormat) decode(data []byte) ([]Event, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols, err := locate(rows[0])
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, cells := range rows[1:] {
		if len(cells) == 0 {
			continue
		}
		ev, err := cols.parse(cells)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
