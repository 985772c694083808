package snapshot

import (
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg" // JPEG decoder
	"os"

	"github.com/nfnt/resize"

	apperrors "github.com/snapdiff/snapdiff/internal/errors"
)

const (
	collageTileWidth = 400
	collageColumns   = 3
)

// Collage assembles artifacts into a single grid image for reports,
// three tiles per row, each scaled to a uniform width. Missing or
// unreadable paths are skipped; at least one readable image is required.
func (s *Store) Collage(paths []string, name string) (string, error) {
	var tiles []image.Image
	tileHeight := 0
	for _, p := range paths {
		img, err := loadImage(p)
		if err != nil {
			continue
		}
		scaled := resize.Resize(collageTileWidth, 0, img, resize.Lanczos3)
		if h := scaled.Bounds().Dy(); h > tileHeight {
			tileHeight = h
		}
		tiles = append(tiles, scaled)
	}
	if len(tiles) == 0 {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "no readable images for collage")
	}

	cols := min(collageColumns, len(tiles))
	rows := (len(tiles) + cols - 1) / cols

	canvas := image.NewNRGBA(image.Rect(0, 0, cols*collageTileWidth, rows*tileHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for i, tile := range tiles {
		x := (i % cols) * collageTileWidth
		y := (i / cols) * tileHeight
		r := image.Rect(x, y, x+tile.Bounds().Dx(), y+tile.Bounds().Dy())
		draw.Draw(canvas, r, tile, tile.Bounds().Min, draw.Src)
	}

	return s.Save(KindComparisons, name, canvas)
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
