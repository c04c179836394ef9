package imageutil

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   []float32
		want []uint8
	}{
		{"empty", nil, []uint8{}},
		{"zero one", []float32{0, 0.5, 1}, []uint8{0, 127, 255}},
		{"byte range", []float32{0, 1.4, 1.6, 254.5, 255}, []uint8{0, 1, 2, 255, 255}},
		{"rescale", []float32{-1, 0, 1}, []uint8{0, 127, 255}},
		{"degenerate", []float32{-5, -5, -5}, []uint8{128, 128, 128}},
		{"constant in byte range", []float32{5, 5, 5, 5}, []uint8{128, 128, 128, 128}},
		{"constant zero", []float32{0, 0}, []uint8{128, 128}},
		{"above 255", []float32{0, 510}, []uint8{0, 255}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Normalize(tt.in)); diff != "" {
				t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSaveImageFormats(t *testing.T) {
	dir := t.TempDir()
	data := []float32{0, 0.25, 0.5, 0.75, 1, 1, 0, 0, 0, 0, 0, 0.5}

	for _, name := range []string{"out.png", "out.bmp", "out.tiff", "out.noext"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := SaveImage(path, data, 2, 2, 3); err != nil {
				t.Fatal(err)
			}

			f, err := os.Open(path)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()

			var img image.Image
			switch filepath.Ext(name) {
			case ".bmp":
				img, err = bmp.Decode(f)
			case ".tiff":
				img, err = tiff.Decode(f)
			default:
				img, err = png.Decode(f)
			}
			if err != nil {
				t.Fatal(err)
			}

			if b := img.Bounds(); b.Dx() != 2 || b.Dy() != 2 {
				t.Errorf("bounds = %v, want 2x2", b)
			}

			r, g, b, _ := img.At(1, 0).RGBA()
			if r>>8 != 191 || g>>8 != 255 || b>>8 != 255 {
				t.Errorf("pixel (1,0) = %d %d %d, want 191 255 255", r>>8, g>>8, b>>8)
			}
		})
	}
}

func TestSaveImageBytesGray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gray.png")
	if err := SaveImageBytes(path, []uint8{0, 64, 128, 255}, 2, 2, 1); err != nil {
		t.Fatal(err)
	}

	bts, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	img, err := png.Decode(bytes.NewReader(bts))
	if err != nil {
		t.Fatal(err)
	}

	if got := color.GrayModel.Convert(img.At(0, 1)).(color.Gray).Y; got != 128 {
		t.Errorf("pixel (0,1) = %d, want 128", got)
	}
}

func TestSaveImageInvalid(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name                    string
		n, width, height, chans int
	}{
		{"channels", 8, 2, 2, 2},
		{"size", 11, 2, 2, 3},
		{"zero width", 0, 0, 2, 3},
	}

	for _, tt := range cases {
		err := SaveImage(filepath.Join(dir, tt.name+".png"), make([]float32, tt.n), tt.width, tt.height, tt.chans)
		if !errors.Is(err, ErrInvalidDimensions) {
			t.Errorf("%s: got %v, want ErrInvalidDimensions", tt.name, err)
		}
	}
}

func TestImageDims(t *testing.T) {
	cases := []struct {
		shape   []int
		w, h, c int
		ok      bool
	}{
		{[]int{1, 224, 200, 3}, 200, 224, 3, true},
		{[]int{64, 32, 4}, 32, 64, 4, true},
		{[]int{10, 20}, 20, 10, 1, true},
		{[]int{2, 8, 8, 3}, 0, 0, 0, false},
		{[]int{1, 8, 8, 2}, 0, 0, 0, false},
		{[]int{1000}, 0, 0, 0, false},
	}

	for _, tt := range cases {
		w, h, c, err := ImageDims(tt.shape)
		if (err == nil) != tt.ok {
			t.Errorf("ImageDims(%v) error = %v, want ok %t", tt.shape, err, tt.ok)
			continue
		}
		if w != tt.w || h != tt.h || c != tt.c {
			t.Errorf("ImageDims(%v) = %d %d %d, want %d %d %d", tt.shape, w, h, c, tt.w, tt.h, tt.c)
		}
	}
}

func encodeTestPNG(t *testing.T, c color.Color, size int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPrepare(t *testing.T) {
	approx := cmpopts.EquateApprox(0, 1e-6)
	src := encodeTestPNG(t, color.RGBA{R: 255, G: 0, B: 51, A: 255}, 8)

	t.Run("mobilenet nhwc", func(t *testing.T) {
		p, err := PrepareBytes(src, PrepareOptions{Size: 4, Normalize: NormalizeMobileNet})
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff([]int{1, 4, 4, 3}, p.Shape); diff != "" {
			t.Errorf("shape mismatch (-want +got):\n%s", diff)
		}
		if p.Bytes != nil || len(p.Float) != 48 {
			t.Fatalf("unexpected payload: %d floats, %d bytes", len(p.Float), len(p.Bytes))
		}
		if diff := cmp.Diff([]float32{1, -1, 51/127.5 - 1}, p.Float[:3], approx); diff != "" {
			t.Errorf("first pixel mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("zero one nchw", func(t *testing.T) {
		p, err := PrepareBytes(src, PrepareOptions{Size: 2, Normalize: NormalizeZeroOne, ChannelsFirst: true})
		if err != nil {
			t.Fatal(err)
		}

		want := []float32{1, 1, 1, 1, 0, 0, 0, 0, 0.2, 0.2, 0.2, 0.2}
		if diff := cmp.Diff(want, p.Float, approx); diff != "" {
			t.Errorf("nchw mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]int{1, 3, 2, 2}, p.Shape); diff != "" {
			t.Errorf("shape mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("imagenet", func(t *testing.T) {
		p, err := PrepareBytes(src, PrepareOptions{Size: 1, Normalize: NormalizeImageNet})
		if err != nil {
			t.Fatal(err)
		}

		want := []float32{(255 - 123.68) / 58.393, (0 - 116.78) / 57.12, (51 - 103.94) / 57.375}
		if diff := cmp.Diff(want, p.Float, approx); diff != "" {
			t.Errorf("imagenet mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("quantize", func(t *testing.T) {
		p, err := PrepareBytes(src, PrepareOptions{Size: 1, Quantize: true})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]uint8{255, 0, 51}, p.Bytes); diff != "" {
			t.Errorf("quantize mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("errors", func(t *testing.T) {
		if _, err := PrepareBytes(src, PrepareOptions{Size: 4, Normalize: "sepia"}); err == nil {
			t.Error("unknown mode: want error")
		}
		if _, err := PrepareBytes(src, PrepareOptions{Size: 0, Normalize: NormalizeNone}); err == nil {
			t.Error("zero size: want error")
		}
		if _, err := PrepareBytes([]byte("no image"), DefaultPrepareOptions()); err == nil {
			t.Error("garbage input: want error")
		}
		if _, err := Prepare(filepath.Join(t.TempDir(), "missing.png"), DefaultPrepareOptions()); err == nil {
			t.Error("missing file: want error")
		}
	})
}
