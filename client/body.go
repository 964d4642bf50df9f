package client

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// decompress undoes a Content-Encoding the transport left in place.
// Unknown encodings are returned untouched.
func decompress(hdr http.Header, raw []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(hdr.Get("Content-Encoding")))
	if encoding == "" || encoding == "identity" || len(raw) == 0 {
		return raw, nil
	}

	var r io.Reader
	switch encoding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer zr.Close()
		r = zr

	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate reader: %w", err)
		}
		defer zr.Close()
		r = zr

	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr

	default:
		return raw, nil
	}

	return readLimited(r)
}

func readLimited(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxBodySize {
		return nil, ErrBodyTooLarge
	}

	return b, nil
}
