package media

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/matzehuels/imgembed/pkg/errors"
)

// DataURL is a parsed data: URL.
type DataURL struct {
	MIME    string // e.g. image/png
	Subtype string // part after the slash, e.g. svg+xml
	Type    Type   // Normalize(Subtype)
	Base64  bool
	Data    []byte
}

// IsDataURL reports whether src uses the data scheme.
func IsDataURL(src string) bool {
	return len(src) >= 5 && strings.EqualFold(src[:5], "data:")
}

// ParseDataURL splits src into its media type and payload. The subtype is
// taken from the header up to the first ';' and defaults to png when the
// header names no subtype.
func ParseDataURL(src string) (DataURL, error) {
	if !IsDataURL(src) {
		return DataURL{}, errors.New(errors.ErrCodeInvalidInput, "not a data URL")
	}
	header, payload, ok := strings.Cut(src[5:], ",")
	if !ok {
		return DataURL{}, errors.New(errors.ErrCodeInvalidFormat, "data URL has no payload separator")
	}

	params := strings.Split(header, ";")
	d := DataURL{MIME: strings.ToLower(strings.TrimSpace(params[0]))}
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			d.Base64 = true
		}
	}
	if _, sub, ok := strings.Cut(d.MIME, "/"); ok {
		d.Subtype = sub
	}
	if d.Subtype == "" {
		d.Subtype = string(PNG)
	}
	d.Type = Normalize(d.Subtype)

	var err error
	if d.Base64 {
		d.Data, err = decodeBase64(payload)
	} else {
		var s string
		s, err = url.PathUnescape(payload)
		d.Data = []byte(s)
	}
	if err != nil {
		return DataURL{}, errors.Wrap(errors.ErrCodeDecode, err, "decode data URL payload")
	}
	return d, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
