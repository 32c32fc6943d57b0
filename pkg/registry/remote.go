package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/pkg/errors"

	"github.com/fluxcd/imagepromote/pkg/credentials"
	"github.com/fluxcd/imagepromote/pkg/image"
	"github.com/fluxcd/imagepromote/pkg/registry/middleware"
)

// Remote copies images between registries without a Docker daemon.
// A pulled image is only its manifest and config, held in memory;
// layers are streamed from the source registry when it is pushed.
type Remote struct {
	Logger   log.Logger
	Limiters *middleware.RateLimiters
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
	// InsecureHosts may be contacted over plain HTTP.
	InsecureHosts []string

	mu     sync.Mutex
	auths  map[string]authn.Authenticator
	images map[string]v1.Image
}

func NewRemote(logger log.Logger, limiters *middleware.RateLimiters) *Remote {
	return &Remote{Logger: logger, Limiters: limiters}
}

func (r *Remote) logger() log.Logger {
	if r.Logger == nil {
		return log.NewNopLogger()
	}
	return r.Logger
}

func (r *Remote) transport(host string) http.RoundTripper {
	tx := r.Transport
	if tx == nil {
		tx = http.DefaultTransport
	}
	if r.Limiters != nil {
		tx = r.Limiters.RoundTripper(tx, host)
	}
	return tx
}

func (r *Remote) insecure(host string) bool {
	for _, h := range r.InsecureHosts {
		if h == host {
			return true
		}
	}
	return false
}

func (r *Remote) nameOptions(host string) []name.Option {
	if r.insecure(host) {
		return []name.Option{name.Insecure}
	}
	return nil
}

func (r *Remote) authFor(host string) authn.Authenticator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.auths[host]; ok {
		return a
	}
	return authn.Anonymous
}

func (r *Remote) options(host string) []remote.Option {
	return []remote.Option{
		remote.WithAuth(r.authFor(host)),
		remote.WithTransport(r.transport(host)),
	}
}

func (r *Remote) succeed(host string) {
	if r.Limiters != nil {
		r.Limiters.Recover(host)
	}
}

// CheckAvailable always succeeds; there's nothing local to depend on.
func (r *Remote) CheckAvailable(ctx context.Context) error {
	return nil
}

// Login checks the credentials by completing the registry's auth
// handshake and asking for the API root.
func (r *Remote) Login(ctx context.Context, registry string, creds credentials.Basic) error {
	reg, err := name.NewRegistry(registry, r.nameOptions(registry)...)
	if err != nil {
		return errors.Wrapf(err, "parsing registry %q", registry)
	}
	auth := &authn.Basic{Username: creds.Username, Password: creds.Password}
	tx, err := transport.New(reg, auth, r.transport(registry), []string{reg.Scope(transport.PullScope)})
	if err != nil {
		return errors.Wrapf(err, "logging in to %s as %s", registry, creds.Username)
	}

	req, err := http.NewRequest("GET", fmt.Sprintf("%s://%s/v2/", reg.Scheme(), reg.RegistryStr()), nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	res, err := (&http.Client{Transport: tx}).Do(req.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "logging in to %s", registry)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("logging in to %s as %s: %s", registry, creds.Username, res.Status)
	}

	r.mu.Lock()
	if r.auths == nil {
		r.auths = map[string]authn.Authenticator{}
	}
	r.auths[registry] = auth
	r.mu.Unlock()
	r.succeed(registry)
	r.logger().Log("registry", registry, "login", "succeeded")
	return nil
}

func (r *Remote) reference(ref image.Ref) (name.Reference, error) {
	n, err := name.ParseReference(ref.String(), r.nameOptions(ref.Registry())...)
	return n, errors.Wrapf(err, "parsing %s", ref)
}

func (r *Remote) Pull(ctx context.Context, ref image.Ref) error {
	n, err := r.reference(ref)
	if err != nil {
		return err
	}
	img, err := remote.Image(n, r.options(ref.Registry())...)
	if err != nil {
		return errors.Wrapf(err, "pulling %s", ref)
	}
	digest, err := img.Digest()
	if err != nil {
		return errors.Wrapf(err, "fetching manifest for %s", ref)
	}
	if _, err := img.ConfigFile(); err != nil {
		return errors.Wrapf(err, "fetching config for %s", ref)
	}
	r.store(ref, img)
	r.succeed(ref.Registry())
	r.logger().Log("pulled", ref, "digest", digest.String())
	return nil
}

func (r *Remote) store(ref image.Ref, img v1.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.images == nil {
		r.images = map[string]v1.Image{}
	}
	r.images[ref.String()] = img
}

func (r *Remote) load(ref image.Ref) (v1.Image, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[ref.String()]
	return img, ok
}

func (r *Remote) Tag(ctx context.Context, src, dst image.Ref) error {
	img, ok := r.load(src)
	if !ok {
		return errors.Wrapf(ErrNotPulled, "tagging %s", src)
	}
	r.store(dst, img)
	return nil
}

func (r *Remote) Push(ctx context.Context, ref image.Ref) error {
	img, ok := r.load(ref)
	if !ok {
		return errors.Wrapf(ErrNotPulled, "pushing %s", ref)
	}
	n, err := r.reference(ref)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := remote.Write(n, img, r.options(ref.Registry())...); err != nil {
		return errors.Wrapf(err, "pushing %s", ref)
	}
	r.succeed(ref.Registry())
	r.logger().Log("pushed", ref, "took", time.Since(start).String())
	return nil
}

func (r *Remote) Remove(ctx context.Context, ref image.Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.images, ref.String())
	return nil
}

var _ Client = &Remote{}
