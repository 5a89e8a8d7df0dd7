package proxy

import (
	"encoding/base64"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"
)

// textContentTypes are media types always returned as plain text
var textContentTypes = map[string]bool{
	"application/json":                  true,
	"application/javascript":            true,
	"application/xml":                   true,
	"application/x-www-form-urlencoded": true,
	"application/graphql":               true,
	"image/svg+xml":                     true,
}

// isBinary decides whether a response body must be base64 encoded
func isBinary(header http.Header, body []byte, binaryTypes map[string]bool) bool {
	if enc := header.Get("Content-Encoding"); enc != "" && !strings.EqualFold(enc, "identity") {
		return true
	}

	contentType := header.Get("Content-Type")
	if contentType == "" {
		return !utf8.Valid(body)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return !utf8.Valid(body)
	}
	mediaType = strings.ToLower(mediaType)

	if binaryTypes[mediaType] {
		return true
	}
	if strings.HasPrefix(mediaType, "text/") || textContentTypes[mediaType] {
		return false
	}
	if strings.HasSuffix(mediaType, "+json") || strings.HasSuffix(mediaType, "+xml") {
		return false
	}
	return true
}

// encodeBody returns the body as sent back to API Gateway
func encodeBody(header http.Header, body []byte, binaryTypes map[string]bool) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	if isBinary(header, body, binaryTypes) {
		return base64.StdEncoding.EncodeToString(body), true
	}
	return string(body), false
}

// useHostHeader fills the request host from the Host header when the event
// carried no domain name, as with events built by hand
func useHostHeader(req *http.Request) {
	if req.Host != "" {
		return
	}
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
		req.URL.Host = host
	}
}

// binaryTypeSet normalises configured binary media types
func binaryTypeSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return set
}
