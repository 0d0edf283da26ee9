package retriever

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"
)

func TestNewDecoderIdentity(t *testing.T) {
	d, err := newDecoder("", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("newDecoder: %v", err)
	}
	if d.encoding != "identity" {
		t.Errorf("encoding = %q, want identity", d.encoding)
	}
	data, err := io.ReadAll(d)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Read() = %q, want %q", data, "hello")
	}
}

func TestNewDecoderUnknownEncodingFallsBackToIdentity(t *testing.T) {
	d, err := newDecoder("br", strings.NewReader("raw bytes"))
	if err != nil {
		t.Fatalf("newDecoder: %v", err)
	}
	if d.encoding != "identity" {
		t.Errorf("encoding = %q, want identity fallback for unsupported encodings", d.encoding)
	}
}

func TestNewDecoderGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte("compressed payload")); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	d, err := newDecoder("gzip", &buf)
	if err != nil {
		t.Fatalf("newDecoder: %v", err)
	}
	data, err := io.ReadAll(d)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "compressed payload" {
		t.Errorf("decoded = %q, want %q", data, "compressed payload")
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNewDecoderGzipInvalidData(t *testing.T) {
	if _, err := newDecoder("gzip", strings.NewReader("not gzip")); err == nil {
		t.Error("expected an error constructing a gzip reader over invalid data")
	}
}

// TestDecoderResumePreservesGzipState simulates a retry mid-gzip-stream: the
// compressed bytes are split into two chunks delivered by two distinct
// io.Readers (standing in for two separate HTTP response bodies), with
// resume() splicing the second in without losing decompressor state. The
// output must be byte-identical to decoding the whole stream in one go.
func TestDecoderResumePreservesGzipState(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	payload := strings.Repeat("resumed gzip payload across a retry boundary ", 2000)
	if _, err := gz.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	compressed := buf.Bytes()
	split := len(compressed) / 2
	firstHalf := bytes.NewReader(compressed[:split])
	secondHalf := bytes.NewReader(compressed[split:])

	d, err := newDecoder("gzip", firstHalf)
	if err != nil {
		t.Fatalf("newDecoder: %v", err)
	}

	// Read a small prefix of the decompressed output -- well within what the
	// first half of the (highly repetitive, so highly compressed) stream can
	// produce -- then splice in the continuation mid-stream.
	first, err := io.ReadAll(io.LimitReader(d, 16))
	if err != nil {
		t.Fatalf("partial ReadAll: %v", err)
	}

	d.resume(secondHalf)

	rest, err := io.ReadAll(d)
	if err != nil {
		t.Fatalf("ReadAll after resume: %v", err)
	}

	got := string(first) + string(rest)
	if got != payload {
		t.Errorf("resumed decode mismatch: got %d bytes, want %d bytes matching original payload", len(got), len(payload))
	}
}
