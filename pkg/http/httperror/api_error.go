package httperror

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
)

// maxBody is how much of a failed response's body is kept.
const maxBody = 4096

// APIError is the cause of errors from webhook posts and probes that
// got a response, just not a 2xx one. Get at it with errors.As.
type APIError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string
}

// FromResponse returns an *APIError for a non-2xx response, and nil
// otherwise. It reads some of the body, but doesn't close it.
func FromResponse(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	body, _ := ioutil.ReadAll(io.LimitReader(res.Body, maxBody))
	err := &APIError{
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Body:       strings.TrimSpace(string(body)),
	}
	if res.Request != nil && res.Request.URL != nil {
		err.URL = res.Request.URL.String()
	}
	return err
}

func (err *APIError) Error() string {
	msg := err.Status
	if err.URL != "" {
		msg = fmt.Sprintf("%s returned %s", err.URL, err.Status)
	}
	if err.Body != "" {
		msg += " (" + err.Body + ")"
	}
	return msg
}

// IsUnavailable says whether whatever answered is overloaded or down,
// rather than refusing the request.
func (err *APIError) IsUnavailable() bool {
	switch err.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
