package stripe

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
)

// headers the SDK is allowed to see on a provider response
var responseHeaderAllowlist = []string{
	"Content-Type",
	"Request-Id",
	"Idempotency-Key",
	"Stripe-Version",
	"Stripe-Should-Retry",
}

// Canonicalize re-encodes a JSON document with sorted object keys and
// number literals preserved. Whitespace and key order of the input never
// reach the caller.
func Canonicalize(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// canonicalTransport reduces every provider response to its canonical form
// before the SDK decodes it.
type canonicalTransport struct {
	next http.RoundTripper
}

func newCanonicalTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &canonicalTransport{next: next}
}

func (t *canonicalTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	header := make(http.Header, len(responseHeaderAllowlist))
	for _, k := range responseHeaderAllowlist {
		if v := resp.Header.Values(k); len(v) > 0 {
			header[k] = v
		}
	}
	resp.Header = header

	if !isJSON(header.Get("Content-Type")) || resp.Body == nil {
		return resp, nil
	}

	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	body, cerr := Canonicalize(raw)
	if cerr != nil {
		// leave undecodable bodies to the SDK's own error path
		body = raw
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return resp, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}
