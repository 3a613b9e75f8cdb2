package fetch

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var errMalformedDataURL = errors.New("malformed data url")

// decodeDataURL decodes an RFC 2397 URL such as
// "data:image/svg+xml;base64,PHN2Zy8+" or "data:,hello%20world".
// Payloads that cannot fit in maxBytes once decoded are rejected up front.
func decodeDataURL(rawURL string, maxBytes int64) ([]byte, error) {
	rest := rawURL[len("data:"):]
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errMalformedDataURL
	}

	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		if maxBytes > 0 {
			n := len(payload) - strings.Count(payload, "\n") - strings.Count(payload, "\r") - strings.Count(payload, " ")
			if int64(n) > maxBytes*4/3+4 {
				return nil, fmt.Errorf("%w: %d encoded bytes", ErrTooLarge, n)
			}
		}
		// browsers tolerate whitespace and missing padding
		payload = strings.Join(strings.Fields(payload), "")
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedDataURL, err)
		}
		return data, nil
	}

	// percent escapes shrink three characters to one at most
	if maxBytes > 0 && int64(len(payload)) > maxBytes*3 {
		return nil, fmt.Errorf("%w: %d encoded bytes", ErrTooLarge, len(payload))
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedDataURL, err)
	}
	return []byte(s), nil
}
