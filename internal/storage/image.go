package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
)

// MaxImageSize is the largest accepted upload
const MaxImageSize = 10 << 20

var (
	// ErrImageTooLarge is returned for uploads over MaxImageSize
	ErrImageTooLarge = errors.New("image exceeds 10 MiB")
	// ErrUnsupportedImage is returned when the sniffed type isn't an allowed image
	ErrUnsupportedImage = errors.New("unsupported image type")
)

// allowed content types mapped to the extension used for the object key
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Image is a validated upload held in memory
type Image struct {
	Data        []byte
	ContentType string
}

// Size returns the image length in bytes
func (i *Image) Size() int64 {
	return int64(len(i.Data))
}

// Reader returns a fresh reader over the image bytes
func (i *Image) Reader() io.ReadSeeker {
	return bytes.NewReader(i.Data)
}

// Key builds a unique object key under prefix, e.g. "packs/<id>/<uuid>.png"
func (i *Image) Key(prefix string) string {
	return fmt.Sprintf("%s/%s%s", prefix, uuid.New().String(), allowedImageTypes[i.ContentType])
}

// ReadImage reads and validates a multipart upload. The declared content type
// is ignored; the type is sniffed from the bytes.
func ReadImage(fh *multipart.FileHeader) (*Image, error) {
	if fh.Size > MaxImageSize {
		return nil, ErrImageTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	return readImage(f)
}

func readImage(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > MaxImageSize {
		return nil, ErrImageTooLarge
	}
	if len(data) == 0 {
		return nil, ErrUnsupportedImage
	}

	contentType := http.DetectContentType(data)
	if _, ok := allowedImageTypes[contentType]; !ok {
		return nil, ErrUnsupportedImage
	}

	return &Image{Data: data, ContentType: contentType}, nil
}
