// MODUL: image
// ZWECK: Ausgabe-Tensoren als Bilddatei speichern
// INPUT: float32- oder uint8-Puffer, Breite, Hoehe, Kanaele (1, 3, 4)
// OUTPUT: PNG-, BMP- oder TIFF-Datei
// NEBENEFFEKTE: Schreibt die Zieldatei
// ABHAENGIGKEITEN: golang.org/x/image/bmp, golang.org/x/image/tiff (extern), image/png
// HINWEISE: float32-Daten werden vor dem Speichern auf [0,255] normalisiert

package imageutil

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// degenerateRange ist die Spannweite, unter der alle Werte als gleich gelten
const degenerateRange = 1e-6

// ErrInvalidDimensions wird bei ungueltigen Bildmassen zurueckgegeben
var ErrInvalidDimensions = errors.New("invalid image dimensions")

// Normalize bildet float32-Werte auf uint8 ab:
// [0,1] wird mit 255 skaliert, [0,255] gerundet, alles andere linear von
// min..max auf 0..255 gestreckt. Konstante Werte ergeben immer 128.
func Normalize(data []float32) []uint8 {
	out := make([]uint8, len(data))
	if len(data) == 0 {
		return out
	}

	lo, hi := slices.Min(data), slices.Max(data)
	slog.Debug("normalizing image data", "min", lo, "max", hi)

	if !(hi-lo >= degenerateRange) {
		for i := range out {
			out[i] = 128
		}
		return out
	}

	switch {
	case lo >= 0 && hi <= 1:
		for i, v := range data {
			out[i] = uint8(v * 255)
		}
	case lo >= 0 && hi <= 255:
		for i, v := range data {
			out[i] = uint8(math.Round(float64(v)))
		}
	default:
		span := hi - lo
		for i, v := range data {
			out[i] = uint8((v - lo) / span * 255)
		}
	}

	return out
}

// SaveImage normalisiert data und speichert es als Bild
func SaveImage(path string, data []float32, width, height, channels int) error {
	if err := checkDims(len(data), width, height, channels); err != nil {
		return err
	}
	return SaveImageBytes(path, Normalize(data), width, height, channels)
}

// SaveImageBytes speichert interleaved uint8-Pixel (HWC) als Bild.
// Das Format folgt der Dateiendung, PNG ist der Default.
func SaveImageBytes(path string, data []uint8, width, height, channels int) error {
	if err := checkDims(len(data), width, height, channels); err != nil {
		return err
	}

	img := toImage(data, width, height, channels)

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := encode(w, path, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	slog.Info("saved image", "path", path, "width", width, "height", height, "channels", channels)
	return nil
}

func encode(w io.Writer, path string, img image.Image) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp":
		return bmp.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return png.Encode(w, img)
	}
}

func checkDims(n, width, height, channels int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	switch channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("%w: %d channels (want 1, 3 or 4)", ErrInvalidDimensions, channels)
	}

	if want := width * height * channels; n != want {
		return fmt.Errorf("%w: expected %d values, got %d", ErrInvalidDimensions, want, n)
	}
	return nil
}

// toImage baut ein image.Image aus interleaved Pixeln
func toImage(data []uint8, width, height, channels int) image.Image {
	rect := image.Rect(0, 0, width, height)

	switch channels {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, data)
		return img
	case 4:
		img := image.NewNRGBA(rect)
		copy(img.Pix, data)
		return img
	default:
		img := image.NewNRGBA(rect)
		for i := range width * height {
			img.Pix[i*4+0] = data[i*3+0]
			img.Pix[i*4+1] = data[i*3+1]
			img.Pix[i*4+2] = data[i*3+2]
			img.Pix[i*4+3] = 0xff
		}
		return img
	}
}

// ImageDims leitet Breite, Hoehe und Kanaele aus einer Tensor-Shape ab.
// Erlaubt sind NHWC mit Batch 1, HWC und HW (Graustufen).
func ImageDims(shape []int) (width, height, channels int, err error) {
	switch len(shape) {
	case 4:
		if shape[0] != 1 {
			return 0, 0, 0, fmt.Errorf("%w: batch size %d (want 1)", ErrInvalidDimensions, shape[0])
		}
		height, width, channels = shape[1], shape[2], shape[3]
	case 3:
		height, width, channels = shape[0], shape[1], shape[2]
	case 2:
		height, width, channels = shape[0], shape[1], 1
	default:
		return 0, 0, 0, fmt.Errorf("%w: rank %d tensor is not an image", ErrInvalidDimensions, len(shape))
	}

	if err := checkDims(width*height*channels, width, height, channels); err != nil {
		return 0, 0, 0, err
	}
	return width, height, channels, nil
}
