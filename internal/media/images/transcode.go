// Package images normalizes external product images: decode any supported
// format, bound the dimensions and re-encode as JPEG.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// ContentType is the MIME type of every transcoded image.
const ContentType = "image/jpeg"

// maxSourcePixels guards against decompression bombs.
const maxSourcePixels = 50_000_000

// ErrTooLarge is returned when the source image exceeds maxSourcePixels.
var ErrTooLarge = errors.New("images: source image too large")

// Profile selects output dimensions and quality.
type Profile struct {
	Name    string
	MaxEdge int
	Quality int
}

// Built-in profiles.
var (
	ProfileDefault   = Profile{Name: "default", MaxEdge: 1000, Quality: 80}
	ProfileThumbnail = Profile{Name: "thumbnail", MaxEdge: 320, Quality: 75}
	ProfileLarge     = Profile{Name: "large", MaxEdge: 1600, Quality: 85}
)

var profiles = map[string]Profile{
	ProfileDefault.Name:   ProfileDefault,
	ProfileThumbnail.Name: ProfileThumbnail,
	ProfileLarge.Name:     ProfileLarge,
}

// LookupProfile returns the named profile. The empty name is the default.
func LookupProfile(name string) (Profile, bool) {
	if name == "" {
		return ProfileDefault, true
	}
	p, ok := profiles[name]
	return p, ok
}

// Result is a transcoded image.
type Result struct {
	Data         []byte
	Width        int
	Height       int
	SourceFormat string
	BlurHash     string
}

// Transcode decodes data, scales it to fit within the profile's max edge
// (never upscaling), flattens transparency onto white and encodes a JPEG.
func Transcode(data []byte, p Profile) (*Result, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Width*cfg.Height > maxSourcePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}

	sb := src.Bounds()
	w, h := FitWithin(sb.Dx(), sb.Dy(), p.MaxEdge)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: p.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	hash, err := ComputeBlurHash(dst)
	if err != nil {
		hash = ""
	}

	return &Result{
		Data:         buf.Bytes(),
		Width:        w,
		Height:       h,
		SourceFormat: format,
		BlurHash:     hash,
	}, nil
}

// FitWithin scales w x h down so the longer edge is at most maxEdge,
// preserving aspect ratio. Images already within bounds are unchanged.
func FitWithin(w, h, maxEdge int) (int, int) {
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) {
		return w, h
	}
	if w >= h {
		return maxEdge, max(1, h*maxEdge/w)
	}
	return max(1, w*maxEdge/h), maxEdge
}
