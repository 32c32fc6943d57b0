package registry

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	dockerregistry "github.com/docker/docker/api/types/registry"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/imagepromote/pkg/credentials"
	"github.com/fluxcd/imagepromote/pkg/image"
)

type fakeEngine struct {
	pingErr    error
	loginErr   error
	stream     string
	pullAuth   string
	pushAuth   string
	tagged     [][2]string
	removed    []string
	apiVersion string
}

func (f *fakeEngine) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{APIVersion: f.apiVersion}, f.pingErr
}

func (f *fakeEngine) RegistryLogin(ctx context.Context, auth types.AuthConfig) (dockerregistry.AuthenticateOKBody, error) {
	return dockerregistry.AuthenticateOKBody{Status: "Login Succeeded"}, f.loginErr
}

func (f *fakeEngine) ImagePull(ctx context.Context, ref string, options types.ImagePullOptions) (io.ReadCloser, error) {
	f.pullAuth = options.RegistryAuth
	return ioutil.NopCloser(strings.NewReader(f.stream)), nil
}

func (f *fakeEngine) ImagePush(ctx context.Context, ref string, options types.ImagePushOptions) (io.ReadCloser, error) {
	f.pushAuth = options.RegistryAuth
	return ioutil.NopCloser(strings.NewReader(f.stream)), nil
}

func (f *fakeEngine) ImageTag(ctx context.Context, source, target string) error {
	f.tagged = append(f.tagged, [2]string{source, target})
	return nil
}

func (f *fakeEngine) ImageRemove(ctx context.Context, imageID string, options types.ImageRemoveOptions) ([]types.ImageDeleteResponseItem, error) {
	f.removed = append(f.removed, imageID)
	return nil, nil
}

func mustRef(t *testing.T, registry, name, tag string) image.Ref {
	ref, err := image.NewRef(registry, name, tag)
	require.NoError(t, err)
	return ref
}

func TestDockerCheckAvailable(t *testing.T) {
	d := newDocker(&fakeEngine{apiVersion: "1.39"}, nil)
	assert.NoError(t, d.CheckAvailable(context.Background()))

	d = newDocker(&fakeEngine{pingErr: errors.New("connection refused")}, nil)
	err := d.CheckAvailable(context.Background())
	assert.Equal(t, ErrUnavailable, errors.Cause(err))
}

func TestDockerPullUsesLoginCredentials(t *testing.T) {
	e := &fakeEngine{apiVersion: "1.39", stream: `{"status":"Pulling"}` + "\n" + `{"status":"Done"}`}
	d := newDocker(e, nil)
	ctx := context.Background()

	ref := mustRef(t, "nexus.local", "app", "v1.2.3")
	require.NoError(t, d.Pull(ctx, ref))
	assert.Empty(t, e.pullAuth, "no login, no auth")

	require.NoError(t, d.Login(ctx, "nexus.local", credentials.Basic{Username: "u", Password: "p"}))
	require.NoError(t, d.Pull(ctx, ref))

	bs, err := base64.URLEncoding.DecodeString(e.pullAuth)
	require.NoError(t, err)
	var auth types.AuthConfig
	require.NoError(t, json.Unmarshal(bs, &auth))
	assert.Equal(t, "u", auth.Username)
	assert.Equal(t, "p", auth.Password)
	assert.Equal(t, "nexus.local", auth.ServerAddress)

	// different registry, different (no) credentials
	require.NoError(t, d.Push(ctx, mustRef(t, "harbor.local", "app", "v1.2.3")))
	assert.Empty(t, e.pushAuth)
}

func TestDockerStreamErrorsSurface(t *testing.T) {
	e := &fakeEngine{stream: `{"status":"Pulling"}` + "\n" + `{"errorDetail":{"message":"manifest unknown"},"error":"manifest unknown"}`}
	d := newDocker(e, nil)
	err := d.Pull(context.Background(), mustRef(t, "nexus.local", "app", "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest unknown")
}

func TestDockerTagRemove(t *testing.T) {
	e := &fakeEngine{}
	d := newDocker(e, nil)
	src := mustRef(t, "nexus.local", "app", "v1")
	dst := mustRef(t, "harbor.local", "app", "v1")
	require.NoError(t, d.Tag(context.Background(), src, dst))
	require.NoError(t, d.Remove(context.Background(), dst))
	assert.Equal(t, [][2]string{{"nexus.local/app:v1", "harbor.local/app:v1"}}, e.tagged)
	assert.Equal(t, []string{"harbor.local/app:v1"}, e.removed)
}

func TestDrain(t *testing.T) {
	assert.NoError(t, drain(bytes.NewBufferString("")))
	assert.Error(t, drain(bytes.NewBufferString("{not json")))
}
