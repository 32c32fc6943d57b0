package http

import (
	"net/http"

	"github.com/golang/gddo/httputil/header"
)

const (
	contentJSON = "application/json"
	contentYAML = "application/yaml"
	contentText = "text/plain"
)

// negotiate picks one of offers for the request's Accept header. With
// no Accept header, the first offer wins. Otherwise the acceptable
// offer with the highest quality wins, ties going to whichever is
// offered first; "" means none is acceptable.
func negotiate(r *http.Request, offers []string) string {
	specs := header.ParseAccept(r.Header, "Accept")
	if len(specs) == 0 {
		return offers[0]
	}
	best, bestQ := "", 0.0
	for _, offer := range offers {
		for _, spec := range specs {
			if spec.Q > bestQ && matches(spec.Value, offer) {
				best, bestQ = offer, spec.Q
			}
		}
	}
	return best
}

// matches accepts exact types and the */* wildcard only; nothing here
// offers enough types for type/* to be worth it.
func matches(accepted, offer string) bool {
	return accepted == offer || accepted == "*/*"
}
