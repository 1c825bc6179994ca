package datasets

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Annotation is one row of a landmarks CSV: an image filename relative to the
// dataset root and its landmark points.
type Annotation struct {
	Filename  string
	Landmarks []Point
}

// AnnotationTable holds every row of a landmarks CSV in file order. Row i is
// sample i. It is never modified after LoadAnnotations returns.
type AnnotationTable struct {
	Path         string
	numLandmarks int
	rows         []Annotation
}

// LoadAnnotations reads a landmarks CSV laid out as
//
//	image_name,part_0_x,part_0_y,part_1_x,part_1_y,...
//
// The header row is skipped. Every other row must carry exactly 2*numLandmarks
// coordinates after the filename. If numLandmarks is <= 0 it is inferred from
// the header width.
func LoadAnnotations(path string, numLandmarks int) (*AnnotationTable, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "annotation file %s", path)
		}
		return nil, errors.Wrapf(err, "failed to open annotation file %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Row widths are checked below so the error names the landmark count.
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrapf(ErrFormat, "%s: missing header row", path)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "%s: failed to read header: %v", path, err)
	}

	if numLandmarks <= 0 {
		if len(header) < 3 || (len(header)-1)%2 != 0 {
			return nil, errors.Wrapf(ErrFormat, "%s: header has %d columns, want a filename followed by x,y pairs", path, len(header))
		}
		numLandmarks = (len(header) - 1) / 2
	}
	want := 1 + 2*numLandmarks

	table := &AnnotationTable{Path: path, numLandmarks: numLandmarks}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.ParseError already carries the line number.
			return nil, errors.Wrapf(ErrFormat, "%s: %v", path, err)
		}
		line, _ := reader.FieldPos(0)
		if len(record) != want {
			return nil, errors.Wrapf(ErrFormat, "%s line %d: %d coordinates, want %d (%d landmarks)",
				path, line, len(record)-1, 2*numLandmarks, numLandmarks)
		}

		name := strings.TrimSpace(record[0])
		if name == "" {
			return nil, errors.Wrapf(ErrFormat, "%s line %d: empty image filename", path, line)
		}

		points := make([]Point, numLandmarks)
		for i := range numLandmarks {
			x, err := parseFloat64(record[1+2*i])
			if err != nil {
				return nil, errors.Wrapf(ErrFormat, "%s line %d: landmark %d x: %v", path, line, i, err)
			}
			y, err := parseFloat64(record[2+2*i])
			if err != nil {
				return nil, errors.Wrapf(ErrFormat, "%s line %d: landmark %d y: %v", path, line, i, err)
			}
			points[i] = Point{X: x, Y: y}
		}
		table.rows = append(table.rows, Annotation{Filename: name, Landmarks: points})
	}

	return table, nil
}

// Len returns the number of annotated images.
func (t *AnnotationTable) Len() int {
	return len(t.rows)
}

// NumLandmarks returns the number of points per row.
func (t *AnnotationTable) NumLandmarks() int {
	return t.numLandmarks
}

// At returns row idx. The landmarks are a copy the caller may modify.
func (t *AnnotationTable) At(idx int) (Annotation, error) {
	if idx < 0 || idx >= len(t.rows) {
		return Annotation{}, errors.Wrapf(ErrIndex, "annotation %d not in [0, %d)", idx, len(t.rows))
	}
	row := t.rows[idx]
	return Annotation{Filename: row.Filename, Landmarks: ClonePoints(row.Landmarks)}, nil
}
