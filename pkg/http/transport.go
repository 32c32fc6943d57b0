package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/imagepromote/pkg/errors"
)

func WriteError(w http.ResponseWriter, r *http.Request, code int, err error) {
	switch negotiate(r, []string{contentText, contentJSON}) {
	case contentJSON:
		body, encodeErr := json.Marshal(err)
		if encodeErr != nil {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, "Error encoding error response: %s\n\nOriginal error: %s", encodeErr.Error(), err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(code)
		w.Write(body)
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(code)
		if help, ok := fluxerr.HelpFor(err); ok {
			fmt.Fprint(w, help)
			return
		}
		fmt.Fprint(w, err.Error())
	}
}

// Respond writes result as JSON or YAML, whichever the client
// prefers.
func Respond(w http.ResponseWriter, r *http.Request, code int, result interface{}) {
	contentType := negotiate(r, []string{contentJSON, contentYAML})
	if contentType == "" {
		WriteError(w, r, http.StatusNotAcceptable, errors.New("only JSON and YAML are available"))
		return
	}
	body, err := json.Marshal(result)
	if err == nil && contentType == contentYAML {
		body, err = yaml.JSONToYAML(body)
	}
	if err != nil {
		ErrorResponse(w, r, errors.Wrap(err, "encoding response"))
		return
	}
	w.Header().Set("Content-Type", contentType+"; charset=utf-8")
	w.WriteHeader(code)
	w.Write(body)
}

func ErrorResponse(w http.ResponseWriter, r *http.Request, apiError error) {
	var outErr *fluxerr.Error
	if !errors.As(apiError, &outErr) {
		outErr = fluxerr.CoverAllError(apiError)
	}
	var code int
	switch outErr.Type {
	case fluxerr.Missing:
		code = http.StatusNotFound
	case fluxerr.User:
		code = http.StatusUnprocessableEntity
	default:
		code = http.StatusInternalServerError
	}
	WriteError(w, r, code, outErr)
}
