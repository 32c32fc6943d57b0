package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func requestAccepting(values ...string) *http.Request {
	h := http.Header{}
	for _, v := range values {
		h.Add("Accept", v)
	}
	return &http.Request{Header: h}
}

func TestNegotiate(t *testing.T) {
	offers := []string{contentJSON, contentYAML}

	assert.Equal(t, contentJSON, negotiate(&http.Request{}, offers), "no Accept header")
	assert.Equal(t, "", negotiate(requestAccepting("text/html"), offers), "nothing acceptable")
	assert.Equal(t, contentJSON, negotiate(requestAccepting("application/yaml,application/json"), offers), "equal quality goes to the first offer")
	assert.Equal(t, contentYAML, negotiate(requestAccepting("application/json;q=0.5", "application/yaml"), offers), "quality beats preference")
	assert.Equal(t, contentJSON, negotiate(requestAccepting("*/*"), offers))
}
