package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	dockerregistry "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/fluxcd/imagepromote/pkg/credentials"
	"github.com/fluxcd/imagepromote/pkg/image"
)

// engine is the part of the Docker Engine API the driver uses.
type engine interface {
	Ping(ctx context.Context) (types.Ping, error)
	RegistryLogin(ctx context.Context, auth types.AuthConfig) (dockerregistry.AuthenticateOKBody, error)
	ImagePull(ctx context.Context, ref string, options types.ImagePullOptions) (io.ReadCloser, error)
	ImagePush(ctx context.Context, ref string, options types.ImagePushOptions) (io.ReadCloser, error)
	ImageTag(ctx context.Context, source, target string) error
	ImageRemove(ctx context.Context, imageID string, options types.ImageRemoveOptions) ([]types.ImageDeleteResponseItem, error)
}

// Docker drives a Docker Engine, the same way `docker login`, `docker
// pull`, `docker tag`, `docker push` and `docker rmi` would.
type Docker struct {
	engine engine
	logger log.Logger

	mu    sync.Mutex
	auths map[string]types.AuthConfig
}

// NewDocker connects to the engine given by the usual DOCKER_HOST
// etc. environment variables.
func NewDocker(logger log.Logger) (*Docker, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "creating docker client")
	}
	return newDocker(c, logger), nil
}

func newDocker(e engine, logger log.Logger) *Docker {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Docker{engine: e, logger: logger, auths: map[string]types.AuthConfig{}}
}

func (d *Docker) CheckAvailable(ctx context.Context) error {
	ping, err := d.engine.Ping(ctx)
	if err != nil {
		return errors.Wrap(ErrUnavailable, "docker daemon: "+err.Error())
	}
	if ping.APIVersion == "" {
		return errors.Wrap(ErrUnavailable, "docker daemon returned an empty API version")
	}
	return nil
}

func (d *Docker) Login(ctx context.Context, registry string, creds credentials.Basic) error {
	auth := types.AuthConfig{
		Username:      creds.Username,
		Password:      creds.Password,
		ServerAddress: registry,
	}
	res, err := d.engine.RegistryLogin(ctx, auth)
	if err != nil {
		return errors.Wrapf(err, "logging in to %s as %s", registry, creds.Username)
	}
	// Some registries hand back an identity token to use instead of
	// the password.
	if res.IdentityToken != "" {
		auth.Password = ""
		auth.IdentityToken = res.IdentityToken
	}
	d.mu.Lock()
	d.auths[registry] = auth
	d.mu.Unlock()
	d.logger.Log("registry", registry, "login", res.Status)
	return nil
}

// registryAuth encodes the credentials for a registry the way the
// Engine API expects in the X-Registry-Auth header.
func (d *Docker) registryAuth(registry string) (string, error) {
	d.mu.Lock()
	auth, ok := d.auths[registry]
	d.mu.Unlock()
	if !ok {
		return "", nil
	}
	bs, err := json.Marshal(auth)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bs), nil
}

func (d *Docker) Pull(ctx context.Context, ref image.Ref) error {
	auth, err := d.registryAuth(ref.Registry())
	if err != nil {
		return err
	}
	start := time.Now()
	stream, err := d.engine.ImagePull(ctx, ref.String(), types.ImagePullOptions{RegistryAuth: auth})
	if err != nil {
		return errors.Wrapf(err, "pulling %s", ref)
	}
	defer stream.Close()
	if err := drain(stream); err != nil {
		return errors.Wrapf(err, "pulling %s", ref)
	}
	d.logger.Log("pulled", ref, "took", time.Since(start).String())
	return nil
}

func (d *Docker) Tag(ctx context.Context, src, dst image.Ref) error {
	return errors.Wrapf(d.engine.ImageTag(ctx, src.String(), dst.String()), "tagging %s as %s", src, dst)
}

func (d *Docker) Push(ctx context.Context, ref image.Ref) error {
	auth, err := d.registryAuth(ref.Registry())
	if err != nil {
		return err
	}
	start := time.Now()
	stream, err := d.engine.ImagePush(ctx, ref.String(), types.ImagePushOptions{RegistryAuth: auth})
	if err != nil {
		return errors.Wrapf(err, "pushing %s", ref)
	}
	defer stream.Close()
	if err := drain(stream); err != nil {
		return errors.Wrapf(err, "pushing %s", ref)
	}
	d.logger.Log("pushed", ref, "took", time.Since(start).String())
	return nil
}

func (d *Docker) Remove(ctx context.Context, ref image.Ref) error {
	_, err := d.engine.ImageRemove(ctx, ref.String(), types.ImageRemoveOptions{})
	return errors.Wrapf(err, "removing %s", ref)
}

// drain reads a pull or push progress stream to the end. The engine
// reports failures part way through as a message in the stream
// rather than as an HTTP error.
func drain(stream io.Reader) error {
	dec := json.NewDecoder(stream)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "reading progress stream")
		}
		if msg.Error != nil {
			return msg.Error
		}
		if msg.ErrorMessage != "" {
			return errors.New(msg.ErrorMessage)
		}
	}
}

var _ Client = &Docker{}
