package processor

import (
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the WEBP decoder with image.Decode
)

// Decode reads an image in any registered format, applying EXIF orientation.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &ProcessError{Reason: "failed to decode image", Err: err}
	}

	return img, nil
}
