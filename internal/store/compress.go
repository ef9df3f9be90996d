package store

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// gzipPrefix frames compressed full_html values so decoding stays
// unambiguous when compression is toggled between deployments.
const gzipPrefix = "gzip:"

// encodeHTML applies the on-disk framing for full_html.
func encodeHTML(html string, compress bool) (string, error) {
	if !compress || html == "" {
		return html, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(html)); err != nil {
		return "", fmt.Errorf("store: gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("store: gzip close: %w", err)
	}
	return gzipPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decodeHTML inverts encodeHTML. Plain values pass through untouched.
func decodeHTML(stored string) (string, error) {
	if !strings.HasPrefix(stored, gzipPrefix) {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored[len(gzipPrefix):])
	if err != nil {
		return "", fmt.Errorf("store: base64: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("store: gunzip: %w", err)
	}
	defer zr.Close()
	html, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("store: gunzip read: %w", err)
	}
	return string(html), nil
}
