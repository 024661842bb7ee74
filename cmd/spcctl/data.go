package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/spc/internal/domain/model"
)

// Sentinel kinds for data file errors.
var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrNoColumns     = errors.New("no columns")
	ErrFileFormat    = errors.New("unsupported file format")
)

// dataFile is the YAML layout: named columns of values.
//
//	columns:
//	  diameter: [10.1, 10.3, 9.8]
type dataFile struct {
	Columns map[string][]float64 `yaml:"columns"`
}

// loadColumns reads every column from a .yaml/.yml or .csv file.
func loadColumns(path string) (map[string][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return readYAML(f)
	case ".csv":
		return readCSV(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrFileFormat, path)
	}
}

// loadSeries reads one column. An empty name selects the only column, or
// the first one by name when there are several.
func loadSeries(path, column string) (model.Series, error) {
	cols, err := loadColumns(path)
	if err != nil {
		return model.Series{}, err
	}
	if len(cols) == 0 {
		return model.Series{}, fmt.Errorf("%w in %s", ErrNoColumns, path)
	}
	if column == "" {
		column = columnNames(cols)[0]
	}
	values, ok := cols[column]
	if !ok {
		return model.Series{}, fmt.Errorf("%w %q; have %s", ErrUnknownColumn, column, strings.Join(columnNames(cols), ", "))
	}
	return model.NewSeries(column, values), nil
}

func readYAML(r io.Reader) (map[string][]float64, error) {
	var doc dataFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	for name, values := range doc.Columns {
		doc.Columns[name] = finite(values)
	}
	return doc.Columns, nil
}

// readCSV treats the first row as column names. Cells that are blank or
// not numeric are skipped, so each column keeps only its measurements.
func readCSV(r io.Reader) (map[string][]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string][]float64, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
			header[i] = name
		}
		cols[name] = []float64{}
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		for i, cell := range rec {
			if i >= len(header) {
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			cols[header[i]] = append(cols[header[i]], v)
		}
	}
	return cols, nil
}

func finite(values []float64) []float64 {
	out := values[:0]
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func columnNames(cols map[string][]float64) []string {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
