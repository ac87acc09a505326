package genai

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidDataURI is returned by DecodeDataURI for anything but a base64 data URI.
var ErrInvalidDataURI = errors.New("genai: invalid base64 data URI")

// EncodeDataURI encodes data as a base64 data URI.
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI splits a base64 data URI into its MIME type and payload.
func DecodeDataURI(uri string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}
	mime, ok = strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errors.Join(ErrInvalidDataURI, err)
	}
	return mime, data, nil
}
