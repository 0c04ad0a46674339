package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/smazurov/boothcam/internal/driver"
)

// DefaultJPEGQuality is used when no quality is configured.
const DefaultJPEGQuality = 90

// ErrUnsupportedFormat is returned for frames that cannot be turned into JPEG.
var ErrUnsupportedFormat = errors.New("unsupported frame format")

// EncodeJPEG returns frame as JPEG bytes. MJPEG frames are passed through
// untouched; YUYV frames are encoded at quality.
func EncodeJPEG(frame driver.Frame, quality int) ([]byte, error) {
	switch frame.Format {
	case driver.FormatMJPEG:
		if len(frame.Data) < 2 || frame.Data[0] != 0xFF || frame.Data[1] != 0xD8 {
			return nil, fmt.Errorf("%w: mjpeg frame without SOI marker", ErrUnsupportedFormat)
		}
		return frame.Data, nil
	case driver.FormatYUYV:
		img, err := yuyvToYCbCr(frame)
		if err != nil {
			return nil, err
		}
		if quality <= 0 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode failed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, frame.Format)
	}
}

// yuyvToYCbCr unpacks packed YUYV 4:2:2 into planar YCbCr without any
// colour conversion.
func yuyvToYCbCr(frame driver.Frame) (*image.YCbCr, error) {
	w, h := frame.Size.Width, frame.Size.Height
	if w <= 0 || h <= 0 || w%2 != 0 {
		return nil, fmt.Errorf("%w: yuyv size %s", ErrUnsupportedFormat, frame.Size)
	}
	if len(frame.Data) < w*h*2 {
		return nil, fmt.Errorf("%w: yuyv frame has %d bytes, want %d",
			ErrUnsupportedFormat, len(frame.Data), w*h*2)
	}

	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)
	for y := range h {
		row := frame.Data[y*w*2 : (y+1)*w*2]
		yOff := y * img.YStride
		cOff := y * img.CStride
		for i := range w / 2 {
			px := row[i*4 : i*4+4]
			img.Y[yOff+2*i] = px[0]
			img.Cb[cOff+i] = px[1]
			img.Y[yOff+2*i+1] = px[2]
			img.Cr[cOff+i] = px[3]
		}
	}
	return img, nil
}
