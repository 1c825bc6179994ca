package datasets

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	chaiwebp "github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// parseFloat64 parses a finite coordinate.
func parseFloat64(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// LoadImage decodes the image file at path. A missing file is ErrNotFound and
// bytes no registered decoder accepts are ErrDecode.
func LoadImage(path string) (image.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "image %s", path)
		}
		return nil, errors.Wrapf(err, "failed to stat image %s", path)
	}
	if info.IsDir() {
		return nil, errors.Wrapf(ErrNotFound, "image %s is a directory", path)
	}

	img, err := imaging.Open(path)
	if err == nil {
		return img, nil
	}

	// golang.org/x/image/webp rejects some encoder extensions libwebp accepts.
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		if data, rerr := os.ReadFile(path); rerr == nil {
			if wimg, werr := chaiwebp.Decode(bytes.NewReader(data)); werr == nil {
				return wimg, nil
			}
		}
	}
	return nil, errors.Wrapf(ErrDecode, "image %s: %v", path, err)
}

// ResolveAnnotationFile returns path unchanged when it is a file. When it is
// a directory it returns the first CSV in it, in lexical order.
func ResolveAnnotationFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrapf(ErrNotFound, "annotation file %s", path)
		}
		return "", errors.Wrapf(err, "failed to stat %s", path)
	}
	if !info.IsDir() {
		return path, nil
	}

	// Glob results are sorted.
	matches, err := filepath.Glob(filepath.Join(path, "*.csv"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && !fi.IsDir() {
			return m, nil
		}
	}
	return "", errors.Wrapf(ErrNotFound, "no CSV file in directory %s", path)
}
