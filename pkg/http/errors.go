package http

import (
	"errors"

	fluxerr "github.com/fluxcd/imagepromote/pkg/errors"
)

var ErrNoSnapshot = &fluxerr.Error{
	Type: fluxerr.Missing,
	Help: `The monitor has not finished evaluating the release yet.

Try again once the first round of checks is done; the monitor logs a
line with "classification" when it is.
`,
	Err: errors.New("no health snapshot yet"),
}

func MakeNotFound(path string) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Missing,
		Help: `The path requested is not served by the monitor. The monitor serves

    /metrics
    /healthz
    /api/v1/health
    /api/v1/state

and was asked for

    ` + path + `
`,
		Err: errors.New("path not found"),
	}
}
