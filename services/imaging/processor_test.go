package imagingsvc

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markit/core/answer"
)

func newPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 20), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func sizes(t *testing.T, outputs [][]byte) [][2]int {
	t.Helper()
	got := make([][2]int, 0, len(outputs))
	for _, out := range outputs {
		img, err := imaging.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		got = append(got, [2]int{img.Bounds().Dx(), img.Bounds().Dy()})
	}
	return got
}

func TestProcessor_ProcessImage(t *testing.T) {
	content := newPNG(t, 10, 4)

	tests := []struct {
		name string
		opts answer.ImageOptions
		want [][2]int
	}{
		{name: "no processing", opts: answer.ImageOptions{}, want: [][2]int{{10, 4}}},
		{name: "cut middle", opts: answer.ImageOptions{CutMiddle: true}, want: [][2]int{{5, 4}, {5, 4}}},
		{name: "discard first", opts: answer.ImageOptions{CutMiddle: true, DiscardFirst: true}, want: [][2]int{{5, 4}}},
		{name: "fit max width", opts: answer.ImageOptions{FitMaxWidth: 5}, want: [][2]int{{5, 2}}},
		{name: "fit max height", opts: answer.ImageOptions{FitMaxHeight: 2}, want: [][2]int{{5, 2}}},
		{name: "already fits", opts: answer.ImageOptions{FitMaxWidth: 20, FitMaxHeight: 20}, want: [][2]int{{10, 4}}},
		{name: "cut then fit", opts: answer.ImageOptions{CutMiddle: true, FitMaxWidth: 4}, want: [][2]int{{4, 3}, {4, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outputs, err := NewProcessor().ProcessImage(content, ".PNG", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sizes(t, outputs))
		})
	}
}

func TestProcessor_ProcessImage_errors(t *testing.T) {
	_, err := NewProcessor().ProcessImage([]byte("not an image"), ".png", answer.ImageOptions{CutMiddle: true})
	assert.Error(t, err)

	_, err = NewProcessor().ProcessImage(newPNG(t, 2, 2), ".xyz", answer.ImageOptions{CutMiddle: true})
	assert.Error(t, err)
}

func TestProcessor_CountPDFPages(t *testing.T) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i := 0; i < 3; i++ {
		pdf.AddPage()
		pdf.Cell(40, 10, "page")
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))

	n, err := NewProcessor().CountPDFPages(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = NewProcessor().CountPDFPages([]byte("%PDF-garbage"))
	assert.Error(t, err)
}
