package message

import (
	"encoding/base64"
	"strings"

	"pairchat/internal/pkg/errs"
)

const (
	// MaxTextBytes is the maximum allowed size of message text.
	MaxTextBytes = 5000

	// MaxImageSizeMB is the maximum decoded image size in megabytes.
	MaxImageSizeMB = 5

	// MaxImageSize is the maximum decoded image size in bytes.
	MaxImageSize = MaxImageSizeMB * 1024 * 1024
)

// AllowedImageMIMETypes is the set of permitted image media types.
var AllowedImageMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// MIMEToExt maps allowed media types to the object key extension.
var MIMEToExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ParseImageDataURL validates and decodes an image submitted as a base64 data
// URL ("data:image/png;base64,...."). It returns the media type and the raw
// bytes, enforcing the type allowlist and the size cap.
func ParseImageDataURL(dataURL string) (mimeType string, data []byte, cerr *errs.CustomError) {
	const scheme = "data:"
	if !strings.HasPrefix(dataURL, scheme) {
		return "", nil, errs.NewError(errs.ErrImagePayloadInvalid)
	}

	meta, encoded, found := strings.Cut(dataURL[len(scheme):], ",")
	if !found {
		return "", nil, errs.NewError(errs.ErrImagePayloadInvalid)
	}

	mimeType, encoding, found := strings.Cut(meta, ";")
	if !found || encoding != "base64" {
		return "", nil, errs.NewError(errs.ErrImagePayloadInvalid)
	}

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if _, ok := AllowedImageMIMETypes[mimeType]; !ok {
		return "", nil, errs.NewError(errs.ErrImageTypeInvalid)
	}

	// Reject oversize payloads before decoding. Base64 inflates by 4/3, so
	// this bounds the decode work too.
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxImageSize+3 {
		return "", nil, errs.NewError(errs.ErrImageTooLarge, MaxImageSizeMB)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, errs.NewError(errs.ErrImagePayloadInvalid)
	}

	if len(data) == 0 {
		return "", nil, errs.NewError(errs.ErrImagePayloadInvalid)
	}
	if len(data) > MaxImageSize {
		return "", nil, errs.NewError(errs.ErrImageTooLarge, MaxImageSizeMB)
	}

	return mimeType, data, nil
}
