package fetch

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

// acceptEncoding is sent on every request. Setting it disables the
// transport's transparent gzip handling, so readBody decodes both.
const acceptEncoding = "gzip, br"

// readBody decompresses and transcodes a response body to UTF-8. A
// decompressed body longer than limit fails with ErrBodyTooLarge.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	var r io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	case "br":
		r = brotli.NewReader(resp.Body)
	case "", "identity":
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if limit > 0 && int64(len(raw)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}

	utf8, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("charset reader: %w", err)
	}

	body, err := io.ReadAll(utf8)
	if err != nil {
		return nil, fmt.Errorf("transcode response body: %w", err)
	}
	return body, nil
}
