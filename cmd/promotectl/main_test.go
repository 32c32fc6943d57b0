// Shared command test code
package main

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime"
	fakekubernetes "k8s.io/client-go/kubernetes/fake"

	"github.com/fluxcd/imagepromote/pkg/cluster/kubernetes"
)

// writeConfig writes a deployment.conf into a fresh directory,
// returning its path and a cleanup function.
func writeConfig(t *testing.T, contents string) (string, func()) {
	dir, err := ioutil.TempDir("", "promotectl-test")
	require.NoError(t, err)
	path := filepath.Join(dir, "deployment.conf")
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0600))
	return path, func() { os.RemoveAll(dir) }
}

type testRoot struct {
	opts   *rootOpts
	cmd    *cobra.Command
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// newTestRoot gives a root command whose cluster is a fake holding
// objects.
func newTestRoot(objects ...runtime.Object) *testRoot {
	opts := newRoot()
	opts.newCluster = func(string, log.Logger) (*kubernetes.Cluster, error) {
		return kubernetes.NewCluster(fakekubernetes.NewSimpleClientset(objects...), nil, log.NewNopLogger()), nil
	}
	tr := &testRoot{opts: opts, cmd: opts.Command(), stdout: new(bytes.Buffer), stderr: new(bytes.Buffer)}
	tr.cmd.SetOut(tr.stdout)
	tr.cmd.SetErr(tr.stderr)
	return tr
}

func (tr *testRoot) run(args ...string) error {
	tr.cmd.SetArgs(args)
	return tr.cmd.Execute()
}

// okServer answers every request with 200, standing in for the
// application's health endpoint.
func okServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}
