package kubernetes

import (
	"fmt"

	fluxerr "github.com/fluxcd/imagepromote/pkg/errors"
)

func ObjectMissingError(obj string, err error) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Missing,
		Err:  err,
		Help: fmt.Sprintf(`Cluster object %q not found

The object requested was not found in the cluster. Check the release
name and namespace in the configuration, and perhaps verify its
presence using kubectl.
`, obj)}
}

func RolloutTimeoutError(obj string, err error) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Server,
		Err:  err,
		Help: fmt.Sprintf(`Rollout of %q did not complete in time

The release was applied, but its pods did not all become available
before the timeout. Check the pods with

    kubectl describe %s

and consider raising TIMEOUT if the application is slow to start.
`, obj, obj)}
}
