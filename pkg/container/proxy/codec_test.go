package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsBinary(t *testing.T) {
	binaryTypes := binaryTypeSet([]string{" Application/PDF "})

	tests := []struct {
		name        string
		contentType string
		encoding    string
		body        []byte
		want        bool
	}{
		{"json", "application/json; charset=utf-8", "", []byte(`{}`), false},
		{"text", "text/html", "", []byte("<p>"), false},
		{"vendor json", "application/vnd.api+json", "", []byte(`{}`), false},
		{"svg", "image/svg+xml", "", []byte("<svg/>"), false},
		{"png", "image/png", "", []byte{0x89, 'P', 'N', 'G'}, true},
		{"octet stream", "application/octet-stream", "", []byte("abc"), true},
		{"configured binary", "application/pdf", "", []byte("%PDF"), true},
		{"gzip encoded json", "application/json", "gzip", []byte(`{}`), true},
		{"identity encoding", "text/plain", "identity", []byte("ok"), false},
		{"no type utf8", "", "", []byte("plain"), false},
		{"no type invalid utf8", "", "", []byte{0xff, 0xfe}, true},
		{"malformed type", "text/", "", []byte("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.contentType != "" {
				header.Set("Content-Type", tt.contentType)
			}
			if tt.encoding != "" {
				header.Set("Content-Encoding", tt.encoding)
			}
			if got := isBinary(header, tt.body, binaryTypes); got != tt.want {
				t.Errorf("isBinary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeBody(t *testing.T) {
	header := http.Header{"Content-Type": {"image/png"}}

	body, encoded := encodeBody(header, []byte{1, 2, 3}, nil)
	if !encoded || body != "AQID" {
		t.Errorf("Expected base64 AQID, got %q %v", body, encoded)
	}

	body, encoded = encodeBody(header, nil, nil)
	if encoded || body != "" {
		t.Errorf("Expected empty body to stay unencoded, got %q %v", body, encoded)
	}
}

func TestUseHostHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = ""
	req.Header.Set("Host", "local.test")
	useHostHeader(req)
	if req.Host != "local.test" || req.URL.Host != "local.test" {
		t.Errorf("Expected host from header, got %q %q", req.Host, req.URL.Host)
	}

	req = httptest.NewRequest(http.MethodGet, "https://api.example.com/", nil)
	req.Header.Set("Host", "ignored.test")
	useHostHeader(req)
	if req.Host != "api.example.com" {
		t.Errorf("Expected domain name to win, got %q", req.Host)
	}
}
