package adapters

//go:generate mockgen -source=doer.go -destination=mocks/mocks.go -package=mocks

import "net/http"

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
