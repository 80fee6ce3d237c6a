package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path"
	"strings"
)

// Images optimizes raster images by re-encoding them. PNGs are written with
// the best compression level and JPEGs at the configured quality. The
// re-encoded file is kept only when it is smaller; every other format is
// copied unchanged.
//
// Options:
//
//	quality int  JPEG quality 1-100 (default 82)
type Images struct{}

// NewImages creates an image optimization unit.
func NewImages() *Images { return &Images{} }

// Category returns "images".
func (i *Images) Category() string { return "images" }

// Transform optimizes every input.
func (i *Images) Transform(ctx context.Context, req Request) (Output, error) {
	quality := req.Options.Int("quality", 82)
	if quality < 1 || quality > 100 {
		return Output{}, fmt.Errorf("jpeg quality %d out of range 1-100", quality)
	}

	var warnings []string
	files := make([]File, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		data, err := req.ReadInput(in)
		if err != nil {
			return Output{}, err
		}
		optimized, err := Optimize(path.Ext(in), data, quality)
		if err != nil {
			// Undecodable images are shipped as they are.
			warnings = append(warnings, fmt.Sprintf("%s: %v", in, err))
			optimized = data
		}
		files = append(files, File{Rel: req.RelToBase(in), Data: optimized})
	}

	out, err := Commit(req, files)
	if err != nil {
		return Output{}, err
	}
	out.Warnings = warnings
	return out, nil
}

// Optimize re-encodes a raster image by extension and returns whichever of
// the original and the re-encoded bytes is smaller.
func Optimize(ext string, data []byte, quality int) ([]byte, error) {
	var (
		img image.Image
		err error
		buf bytes.Buffer
	)

	switch strings.ToLower(ext) {
	case ".png":
		if img, err = png.Decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("decoding png: %w", err)
		}
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	case ".jpg", ".jpeg":
		if img, err = jpeg.Decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("decoding jpeg: %w", err)
		}
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case ".gif":
		g, derr := gif.DecodeAll(bytes.NewReader(data))
		if derr != nil {
			return nil, fmt.Errorf("decoding gif: %w", derr)
		}
		err = gif.EncodeAll(&buf, g)
	default:
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", ext, err)
	}

	if buf.Len() < len(data) {
		return buf.Bytes(), nil
	}
	return data, nil
}
