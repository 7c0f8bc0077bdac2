package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
)

// ErrProcess is matched by every *ProcessError.
var ErrProcess = errors.New("image processing failed")

// ProcessError reports a failed transformation. It is a deterministic
// function of the input and must not be retried.
type ProcessError struct {
	Reason string
	Err    error
}

func (e *ProcessError) Error() string {
	if e.Err == nil {
		return "process: " + e.Reason
	}
	return fmt.Sprintf("process: %s: %v", e.Reason, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Is reports ErrProcess as a match.
func (e *ProcessError) Is(target error) bool { return target == ErrProcess }

// Format is the encoding applied to every stored object of a domain.
type Format int

const (
	FormatUnspecified Format = iota
	FormatPNG
	FormatJPEG
	FormatGIF
	FormatBMP
	FormatWEBP
)

// ParseFormat maps a configuration value to a Format.
// An empty string yields FormatUnspecified.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return FormatUnspecified, nil
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "gif":
		return FormatGIF, nil
	case "bmp":
		return FormatBMP, nil
	case "webp":
		return FormatWEBP, nil
	default:
		return FormatUnspecified, fmt.Errorf("unknown image format %q", s)
	}
}

// ContentType returns the MIME type objects of this format are stored with.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatGIF:
		return "image/gif"
	case FormatBMP:
		return "image/bmp"
	case FormatWEBP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	case FormatGIF:
		return "gif"
	case FormatBMP:
		return "bmp"
	case FormatWEBP:
		return "webp"
	default:
		return "unspecified"
	}
}

// Filter selects the resampling algorithm used when resizing.
type Filter int

const (
	FilterLanczos Filter = iota
	FilterCatmullRom
	FilterLinear
	FilterGaussian
	FilterNearest
)

// ParseFilter maps a configuration value to a Filter.
// An empty string yields the default FilterLanczos.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lanczos", "lanczos3":
		return FilterLanczos, nil
	case "catmullrom", "catmull-rom":
		return FilterCatmullRom, nil
	case "linear", "triangle":
		return FilterLinear, nil
	case "gaussian":
		return FilterGaussian, nil
	case "nearest":
		return FilterNearest, nil
	default:
		return FilterLanczos, fmt.Errorf("unknown resize filter %q", s)
	}
}

func (f Filter) resample() imaging.ResampleFilter {
	switch f {
	case FilterCatmullRom:
		return imaging.CatmullRom
	case FilterLinear:
		return imaging.Linear
	case FilterGaussian:
		return imaging.Gaussian
	case FilterNearest:
		return imaging.NearestNeighbor
	default:
		return imaging.Lanczos
	}
}

// Size is a target width and height in pixels.
type Size struct {
	Width  int
	Height int
}

// Policy is the transformation applied to every upload of a domain.
// A nil Size means the image is stored without resizing.
type Policy struct {
	Format Format
	Size   *Size
	Filter Filter
}

// ContentType returns the MIME type of the policy's output.
func (p Policy) ContentType() string {
	return p.Format.ContentType()
}

// Transform resizes img to fill the policy size, cropping around the centre,
// and encodes the result in the policy format (JPEG when unspecified).
func (p Policy) Transform(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, &ProcessError{Reason: "no image"}
	}

	out := img
	if p.Size != nil {
		if p.Size.Width <= 0 || p.Size.Height <= 0 {
			return nil, &ProcessError{Reason: fmt.Sprintf("invalid target size %dx%d", p.Size.Width, p.Size.Height)}
		}
		out = imaging.Fill(img, p.Size.Width, p.Size.Height, imaging.Center, p.Filter.resample())
	}

	if b := out.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, &ProcessError{Reason: "empty image"}
	}

	buf := bytes.NewBuffer(nil)
	if err := encode(buf, out, p.Format); err != nil {
		return nil, &ProcessError{Reason: "failed to encode " + p.Format.String(), Err: err}
	}

	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, img image.Image, f Format) error {
	switch f {
	case FormatPNG:
		return imaging.Encode(buf, img, imaging.PNG)
	case FormatGIF:
		return imaging.Encode(buf, img, imaging.GIF)
	case FormatBMP:
		return imaging.Encode(buf, img, imaging.BMP)
	case FormatWEBP:
		return nativewebp.Encode(buf, img, nil)
	default:
		return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(90))
	}
}
