// MODUL: prepare
// ZWECK: Bilder in Modell-Eingaben (NHWC/NCHW Tensoren) umwandeln
// INPUT: Bilddatei (png, jpeg, webp, bmp, tiff), PrepareOptions
// OUTPUT: Prepared mit float32- oder uint8-Daten und Shape
// NEBENEFFEKTE: Dateisystem-Lesezugriff
// ABHAENGIGKEITEN: golang.org/x/image/draw, golang.org/x/image/webp (extern)
// HINWEISE: Bei Quantize wird nicht normalisiert, die Pixel bleiben uint8

package imageutil

import (
	"bytes"
	"fmt"
	"image"
	"os"

	// Decoder registrieren
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// NormalizeMode waehlt die Eingabe-Normalisierung
type NormalizeMode string

const (
	NormalizeImageNet  NormalizeMode = "imagenet"
	NormalizeMobileNet NormalizeMode = "mobilenet"
	NormalizeInception NormalizeMode = "inception"
	NormalizeZeroOne   NormalizeMode = "zero_one"
	NormalizeNone      NormalizeMode = "none"
)

// NormalizeModes listet alle Modi in Ausgabe-Reihenfolge (CLI-Hilfe)
var NormalizeModes = []NormalizeMode{
	NormalizeImageNet,
	NormalizeMobileNet,
	NormalizeInception,
	NormalizeZeroOne,
	NormalizeNone,
}

// ImageNet-Statistik auf Pixelwerten 0..255
var (
	imageNetMean = [3]float32{123.68, 116.78, 103.94}
	imageNetStd  = [3]float32{58.393, 57.12, 57.375}
)

// PrepareOptions steuert Prepare
type PrepareOptions struct {
	// Size ist die Kantenlaenge des quadratischen Zielbilds
	Size      int
	Normalize NormalizeMode

	// Quantize liefert uint8-Pixel ohne Normalisierung
	Quantize bool

	// ChannelsFirst liefert NCHW statt NHWC
	ChannelsFirst bool
}

// DefaultPrepareOptions entspricht MobileNet-Eingaben mit 224x224
func DefaultPrepareOptions() PrepareOptions {
	return PrepareOptions{Size: 224, Normalize: NormalizeMobileNet}
}

// Prepared ist ein vorbereitetes Eingabebild. Genau eines von Float und
// Bytes ist gesetzt.
type Prepared struct {
	Float []float32
	Bytes []uint8
	Shape []int
}

// Prepare laedt ein Bild, skaliert es und wandelt es in einen Tensor
func Prepare(path string, opts PrepareOptions) (*Prepared, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return PrepareBytes(data, opts)
}

// PrepareBytes arbeitet wie Prepare auf kodierten Bilddaten
func PrepareBytes(data []byte, opts PrepareOptions) (*Prepared, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidDimensions, opts.Size)
	}

	if !opts.Quantize && !validMode(opts.Normalize) {
		return nil, fmt.Errorf("unknown normalization method %q", opts.Normalize)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	rgba := resize(img, opts.Size)
	pixels := rgbPixels(rgba)

	n := opts.Size
	p := &Prepared{Shape: []int{1, n, n, 3}}
	if opts.ChannelsFirst {
		p.Shape = []int{1, 3, n, n}
	}

	if opts.Quantize {
		if opts.ChannelsFirst {
			pixels = toCHW(pixels, n, n, 3)
		}
		p.Bytes = pixels
		return p, nil
	}

	values := normalizePixels(pixels, opts.Normalize)
	if opts.ChannelsFirst {
		values = toCHW(values, n, n, 3)
	}
	p.Float = values
	return p, nil
}

func validMode(m NormalizeMode) bool {
	for _, mode := range NormalizeModes {
		if m == mode {
			return true
		}
	}
	return false
}

// resize skaliert auf size x size (ohne Seitenverhaeltnis)
func resize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// rgbPixels gibt interleaved RGB-Werte (HWC) zurueck, Alpha entfaellt
func rgbPixels(img *image.RGBA) []uint8 {
	b := img.Bounds()
	out := make([]uint8, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			out = append(out, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}

func normalizePixels(pixels []uint8, mode NormalizeMode) []float32 {
	out := make([]float32, len(pixels))
	for i, px := range pixels {
		v := float32(px)
		switch mode {
		case NormalizeImageNet:
			c := i % 3
			out[i] = (v - imageNetMean[c]) / imageNetStd[c]
		case NormalizeMobileNet, NormalizeInception:
			out[i] = v/127.5 - 1
		case NormalizeZeroOne:
			out[i] = v / 255
		default:
			out[i] = v
		}
	}
	return out
}

// toCHW wandelt HWC in CHW um
func toCHW[T any](hwc []T, h, w, c int) []T {
	chw := make([]T, len(hwc))
	plane := h * w
	for i := range plane {
		for ch := range c {
			chw[ch*plane+i] = hwc[i*c+ch]
		}
	}
	return chw
}
