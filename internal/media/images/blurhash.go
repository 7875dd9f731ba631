package images

import (
	"fmt"
	"image"

	"github.com/bbrks/go-blurhash"
	"golang.org/x/image/draw"
)

// blurHashSize is the target size for BlurHash computation.
// A small thumbnail produces nearly identical hashes in milliseconds.
const blurHashSize = 64

// ComputeBlurHash generates a BlurHash placeholder string for img using
// 4x3 components (~20-30 chars).
func ComputeBlurHash(img image.Image) (string, error) {
	hash, err := blurhash.Encode(4, 3, shrinkForBlurHash(img))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// shrinkForBlurHash scales img down with nearest-neighbour sampling, which is
// fast and sufficient for a low-resolution placeholder.
func shrinkForBlurHash(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= blurHashSize && b.Dy() <= blurHashSize {
		return img
	}
	w, h := FitWithin(b.Dx(), b.Dy(), blurHashSize)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
