package httpx

import "net/http"

// Doer is the minimal HTTP client interface used across packages so tests can
// inject fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// UserAgent identifies this tool on all outbound HTTP requests.
const UserAgent = "bibfixer/1.0 (+https://github.com/bibfixer/bibfixer)"

// SetUA sets the UserAgent header on the request.
func SetUA(req *http.Request) {
	if req != nil {
		req.Header.Set("User-Agent", UserAgent)
	}
}
