package csvlog

import (
	"strconv"
	"strings"
)

// Row is one appended record: a positional index followed by its fields.
type Row struct {
	Index  int
	Fields []string
}

// Schema fixes the header and the line layout of a log file.
type Schema struct {
	Name string
	// Header is written once when the file is empty. Empty means no header.
	Header string
	Render func(Row) string
}

// Line renders r terminated by a newline.
func (s Schema) Line(r Row) string {
	if s.Render != nil {
		return s.Render(r) + "\n"
	}
	return plainRow(r) + "\n"
}

func plainRow(r Row) string {
	if len(r.Fields) == 0 {
		return strconv.Itoa(r.Index)
	}
	return strconv.Itoa(r.Index) + "," + strings.Join(r.Fields, ",")
}

var (
	// PotSchema stores "index,value" with no header.
	PotSchema = Schema{Name: "pot", Render: plainRow}

	// SampleSchema stores synthetic "t,angle,sensor" rows with no header.
	SampleSchema = Schema{Name: "sample", Render: plainRow}

	// ThermistorSchema stores "#index, 24.98°C" under an
	// "index,temperature_C" header.
	ThermistorSchema = Schema{
		Name:   "thermistor",
		Header: "index,temperature_C",
		Render: func(r Row) string {
			v := ""
			if len(r.Fields) > 0 {
				v = r.Fields[0]
			}
			return "#" + strconv.Itoa(r.Index) + ", " + v + "°C"
		},
	}
)

// IntRow builds a row holding one integer value.
func IntRow(index, v int) Row {
	return Row{Index: index, Fields: []string{strconv.Itoa(v)}}
}

// FloatRow builds a row holding one value with two decimals.
func FloatRow(index int, v float64) Row {
	return Row{Index: index, Fields: []string{strconv.FormatFloat(v, 'f', 2, 64)}}
}

// SampleRows builds n synthetic rows: a servo angle stepping 15 degrees per
// row through 0-179 and a sensor value cycling through 100-149.
func SampleRows(n int) []Row {
	rows := make([]Row, 0, n)
	for t := 0; t < n; t++ {
		angle := (t * 15) % 180
		sensor := 100 + (t*3)%50
		rows = append(rows, Row{Index: t, Fields: []string{strconv.Itoa(angle), strconv.Itoa(sensor)}})
	}
	return rows
}
