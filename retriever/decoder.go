package retriever

import (
	"compress/flate"
	"compress/gzip"
	"io"
)

// switchableReader lets a decoder keep reading from a new response body
// after a retry without losing its internal decompression state: gzip.Reader
// and flate.Reader only ever see this stable identity, never the underlying
// *http.Response.Body that gets replaced out from under them.
type switchableReader struct {
	cur io.Reader
}

func (s *switchableReader) Read(p []byte) (int, error) {
	if s.cur == nil {
		return 0, io.EOF
	}
	return s.cur.Read(p)
}

func (s *switchableReader) rebind(r io.Reader) {
	s.cur = r
}

// decoder wraps the remaining Content-Encoding-aware decode state for one
// transfer. Its identity across attempts is what spec.md §4.1 step 8 calls
// "the decoder state preserved across attempts so a mid-stream resume does
// not corrupt a gzip boundary": as long as Content-Encoding hasn't changed
// (step 5), resume() rebinds the same gzip/flate reader to the continuation
// bytes of the next attempt's response body, matching wget.py's
// `resp.decoder = hstat.decoder` reuse of the saved decoder object.
type decoder struct {
	encoding string
	src      *switchableReader
	r        io.Reader
}

func newDecoder(encoding string, body io.Reader) (*decoder, error) {
	src := &switchableReader{cur: body}
	switch encoding {
	case "", "identity":
		return &decoder{encoding: "identity", src: src, r: src}, nil
	case "gzip":
		gz, err := gzip.NewReader(src)
		if err != nil {
			return nil, err
		}
		return &decoder{encoding: "gzip", src: src, r: gz}, nil
	case "deflate":
		return &decoder{encoding: "deflate", src: src, r: flate.NewReader(src)}, nil
	default:
		return &decoder{encoding: "identity", src: src, r: src}, nil
	}
}

// resume rebinds the decoder to a new attempt's response body, continuing
// the same gzip/flate decompressor rather than starting a fresh one.
func (d *decoder) resume(body io.Reader) {
	d.src.rebind(body)
}

func (d *decoder) Read(p []byte) (int, error) {
	return d.r.Read(p)
}

func (d *decoder) Close() error {
	if c, ok := d.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
