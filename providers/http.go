package providers

import (
	"net/http"
	"time"
)

// UserAgent identifiziert den Importer gegenüber den EBI/NCBI-APIs.
const UserAgent = "pgs-curation/1.0 (+https://www.pgscatalog.org)"

// userAgentTransport fügt jeder Anfrage einen User-Agent-Header hinzu.
type userAgentTransport struct {
	Transport http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent)
	return t.Transport.RoundTrip(req)
}

// NewHTTPClient liefert den HTTP-Client für einen Provider.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{Transport: http.DefaultTransport},
	}
}
