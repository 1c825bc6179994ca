package datasets

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// writeCSV writes a CSV file with the given header and rows to path.
func writeCSV(t *testing.T, path, header string, rows []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create csv %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(header + "\n"); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
	for _, r := range rows {
		if _, err := f.WriteString(r + "\n"); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
}

// landmarksHeader returns "image_name,part_0_x,part_0_y,..." for n landmarks.
func landmarksHeader(n int) string {
	cols := []string{"image_name"}
	for i := range n {
		cols = append(cols, fmt.Sprintf("part_%d_x", i), fmt.Sprintf("part_%d_y", i))
	}
	return strings.Join(cols, ",")
}

// landmarksRow returns a row whose landmark i is (base+i, base+i+0.5).
func landmarksRow(name string, n int, base float64) string {
	cols := []string{name}
	for i := range n {
		cols = append(cols, fmt.Sprint(base+float64(i)), fmt.Sprint(base+float64(i)+0.5))
	}
	return strings.Join(cols, ",")
}

// writePNG writes a w x h image whose pixel (x, y) is (x, y, 128).
func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestLoadAnnotations(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "faces.csv")
	writeCSV(t, path, landmarksHeader(3), []string{
		landmarksRow("a.png", 3, 10),
		landmarksRow("b.png", 3, 20),
	})

	table, err := LoadAnnotations(path, 3)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	require.Equal(t, 3, table.NumLandmarks())

	row, err := table.At(1)
	require.NoError(t, err)
	require.Equal(t, "b.png", row.Filename)
	require.Equal(t, []Point{{20, 20.5}, {21, 21.5}, {22, 22.5}}, row.Landmarks)

	// Rows are copied out.
	row.Landmarks[0].X = -1
	again, err := table.At(1)
	require.NoError(t, err)
	require.Equal(t, 20.0, again.Landmarks[0].X)

	_, err = table.At(2)
	require.True(t, errors.Is(err, ErrIndex))
	_, err = table.At(-1)
	require.True(t, errors.Is(err, ErrIndex))
}

func TestLoadAnnotationsInfersLandmarkCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.csv")
	writeCSV(t, path, landmarksHeader(DefaultNumLandmarks), []string{
		landmarksRow("person-7.jpg", DefaultNumLandmarks, 32),
	})

	table, err := LoadAnnotations(path, 0)
	require.NoError(t, err)
	require.Equal(t, DefaultNumLandmarks, table.NumLandmarks())
	row, err := table.At(0)
	require.NoError(t, err)
	require.Len(t, row.Landmarks, DefaultNumLandmarks)
	require.Equal(t, Point{X: 32, Y: 32.5}, row.Landmarks[0])
}

func TestLoadAnnotationsHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.csv")
	writeCSV(t, path, landmarksHeader(2), nil)
	table, err := LoadAnnotations(path, 2)
	require.NoError(t, err)
	require.Equal(t, 0, table.Len())
}

func TestLoadAnnotationsErrors(t *testing.T) {
	tmp := t.TempDir()

	_, err := LoadAnnotations(filepath.Join(tmp, "missing.csv"), 3)
	require.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	empty := filepath.Join(tmp, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = LoadAnnotations(empty, 3)
	require.True(t, errors.Is(err, ErrFormat), "got %v", err)

	cases := map[string]string{
		"short row":   "a.png,1,2,3,4,5",
		"long row":    "a.png,1,2,3,4,5,6,7",
		"not numeric": "a.png,1,2,x,4,5,6",
		"no filename": ",1,2,3,4,5,6",
		"nan":         "a.png,1,2,3,4,5,NaN",
		"inf":         "a.png,1,2,-Inf,4,5,6",
		"huge":        "a.png,1,2,3,4,1e999,6",
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(tmp, strings.ReplaceAll(name, " ", "_")+".csv")
			writeCSV(t, path, landmarksHeader(3), []string{landmarksRow("ok.png", 3, 1), row})
			_, err := LoadAnnotations(path, 3)
			require.True(t, errors.Is(err, ErrFormat), "got %v", err)
			require.Contains(t, err.Error(), "line 3")
		})
	}

	odd := filepath.Join(tmp, "odd.csv")
	writeCSV(t, odd, "image_name,part_0_x", nil)
	_, err = LoadAnnotations(odd, 0)
	require.True(t, errors.Is(err, ErrFormat), "got %v", err)
}
