package release

import (
	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/imagepromote/pkg/errors"
)

var (
	ErrUnavailable  = errors.New("release tool unavailable")
	ErrChartInvalid = errors.New("invalid chart")
	ErrNoRelease    = errors.New("release does not exist")
)

func ChartInvalidError(path string, err error) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.User,
		Err:  err,
		Help: `The chart at ` + path + ` could not be loaded:

    ` + err.Error() + `

HELM_CHART_PATH should name a chart directory (containing Chart.yaml)
or a packaged chart archive. If it contains {{ image_name }}, check
that the image name resolves to the directory you expect.
`,
	}
}

func ReleaseFailedError(release string, err error) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Server,
		Err:  err,
		Help: `Applying release ` + release + ` failed, with this message:

    ` + err.Error() + `

Helm was run with --atomic, so the release should have been returned
to its previous state. Check its history with

    helm history ` + release + `
`,
	}
}
