// Package imagingsvc turns uploaded answer files into page images.
package imagingsvc

import (
	"bytes"
	"image"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pkg/errors"

	"github.com/trezcool/markit/core/answer"
)

const webpQuality = 90

func init() {
	// pdfcpu would otherwise write its config files in the user's config dir
	api.DisableConfigDir()
}

type Processor struct{}

var _ answer.PageProcessor = (*Processor)(nil)

func NewProcessor() *Processor {
	return &Processor{}
}

func (Processor) CountPDFPages(content []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(content), nil)
	if err != nil {
		return 0, errors.Wrap(err, "counting pdf pages")
	}
	return n, nil
}

// ProcessImage cuts and scales the image as opts say, then encodes the results in the format of ext.
func (Processor) ProcessImage(content []byte, ext string, opts answer.ImageOptions) ([][]byte, error) {
	ext = strings.ToLower(ext)
	img, err := decode(content, ext)
	if err != nil {
		return nil, err
	}

	images := cutMiddle([]image.Image{img}, opts)
	images = fitMaxSize(images, opts)

	outputs := make([][]byte, 0, len(images))
	for _, im := range images {
		data, err := encode(im, ext)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, data)
	}
	return outputs, nil
}

func decode(content []byte, ext string) (image.Image, error) {
	if ext == ".webp" {
		img, err := webp.Decode(bytes.NewReader(content))
		return img, errors.Wrap(err, "decoding webp image")
	}
	img, err := imaging.Decode(bytes.NewReader(content), imaging.AutoOrientation(true))
	return img, errors.Wrap(err, "decoding image")
}

func encode(img image.Image, ext string) ([]byte, error) {
	var buf bytes.Buffer
	if ext == ".webp" {
		if err := webp.Encode(&buf, img, &webp.Options{Quality: webpQuality}); err != nil {
			return nil, errors.Wrap(err, "encoding webp image")
		}
		return buf.Bytes(), nil
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, errors.Wrapf(err, "unsupported image format %q", ext)
	}
	if err = imaging.Encode(&buf, img, format); err != nil {
		return nil, errors.Wrap(err, "encoding image")
	}
	return buf.Bytes(), nil
}

// cutMiddle splits every image vertically in two halves. With DiscardFirst only the right halves are kept.
func cutMiddle(images []image.Image, opts answer.ImageOptions) []image.Image {
	if !opts.CutMiddle {
		return images
	}

	outputs := make([]image.Image, 0, 2*len(images))
	for _, img := range images {
		b := img.Bounds()
		cut := b.Min.X + int(math.RoundToEven(float64(b.Dx())/2))
		right := imaging.Crop(img, image.Rect(cut, b.Min.Y, b.Max.X, b.Max.Y))
		if opts.DiscardFirst {
			outputs = append(outputs, right)
			continue
		}
		left := imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y, cut, b.Max.Y))
		outputs = append(outputs, left, right)
	}
	return outputs
}

// fitMaxSize scales down the images exceeding FitMaxHeight or FitMaxWidth, keeping their aspect ratio.
func fitMaxSize(images []image.Image, opts answer.ImageOptions) []image.Image {
	if opts.FitMaxHeight <= 0 && opts.FitMaxWidth <= 0 {
		return images
	}

	outputs := make([]image.Image, 0, len(images))
	for _, img := range images {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		scale := 1.0
		if opts.FitMaxHeight > 0 && h > opts.FitMaxHeight {
			scale = math.Min(scale, float64(opts.FitMaxHeight)/float64(h))
		}
		if opts.FitMaxWidth > 0 && w > opts.FitMaxWidth {
			scale = math.Min(scale, float64(opts.FitMaxWidth)/float64(w))
		}
		if scale < 1 {
			nw := int(math.Max(1, math.Round(float64(w)*scale)))
			nh := int(math.Max(1, math.Round(float64(h)*scale)))
			img = imaging.Resize(img, nw, nh, imaging.Box)
		}
		outputs = append(outputs, img)
	}
	return outputs
}
