package image

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidImageID   = errors.New("invalid image ID")
	ErrBlankImageID     = errors.Wrap(ErrInvalidImageID, "blank image name")
	ErrMalformedImageID = errors.Wrap(ErrInvalidImageID, `expected image name as <registry>/<name>:<tag>`)
	ErrBlankRegistry    = errors.Wrap(ErrInvalidImageID, "blank registry")
	ErrBlankTag         = errors.Wrap(ErrInvalidImageID, "blank tag")
)

// Name represents an unversioned (i.e., untagged) image in a
// particular registry. The domain is the registry host, possibly
// with a port; the image is the path within that registry, which may
// have several elements when the registry is configured with a
// project prefix.
//
// Examples (stringified):
//   * nexus.local/app
//   * harbor.local/platform/app
//   * localhost:5000/arbitrary/path/to/repo
type Name struct {
	Domain, Image string
}

func (i Name) String() string {
	if i.Image == "" {
		return "" // Doesn't make sense to return anything if it doesn't even have an image
	}
	var host string
	if i.Domain != "" {
		host = i.Domain + "/"
	}
	return fmt.Sprintf("%s%s", host, i.Image)
}

// Registry returns the registry host for the image, which is what
// credentials are looked up by.
func (i Name) Registry() string {
	return i.Domain
}

// Repository returns the path part of the Name.
func (i Name) Repository() string {
	return i.Image
}

func (i Name) ToRef(tag string) Ref {
	return Ref{
		Name: i,
		Tag:  tag,
	}
}

// Ref represents a versioned (i.e., tagged) image. Refs built by
// NewRef always have all three of registry, name and tag.
//
// Examples (stringified):
//  * nexus.local/app:v1.2.3
//  * harbor.local/platform/app:v1.2.3
//  * localhost:5000/arbitrary/path/to/repo:revision-sha1
type Ref struct {
	Name
	Tag string
}

// NewRef assembles `registry/name:tag`. The registry may carry a
// path prefix (e.g., `harbor.local/platform`), in which case the
// prefix becomes part of the image path.
func NewRef(registry, name, tag string) (Ref, error) {
	registry = strings.TrimSuffix(strings.TrimSpace(registry), "/")
	name = strings.Trim(strings.TrimSpace(name), "/")
	tag = strings.TrimSpace(tag)
	switch {
	case registry == "":
		return Ref{}, errors.Wrapf(ErrBlankRegistry, "building ref for %q", name)
	case name == "":
		return Ref{}, errors.Wrapf(ErrBlankImageID, "building ref in %q", registry)
	case tag == "":
		return Ref{}, errors.Wrapf(ErrBlankTag, "building ref for %s/%s", registry, name)
	case strings.ContainsAny(tag, ":/@ "):
		return Ref{}, errors.Wrapf(ErrMalformedImageID, "tag %q", tag)
	case strings.Contains(name, ":"):
		return Ref{}, errors.Wrapf(ErrMalformedImageID, "name %q", name)
	}

	domain, prefix := registry, ""
	if i := strings.Index(registry, "/"); i >= 0 {
		domain, prefix = registry[:i], registry[i+1:]
	}
	image := name
	if prefix != "" {
		image = prefix + "/" + name
	}
	return Ref{Name: Name{Domain: domain, Image: image}, Tag: tag}, nil
}

// String returns the Ref as a string (i.e., unparsed).
func (i Ref) String() string {
	var tag string
	if i.Tag != "" {
		tag = ":" + i.Tag
	}
	return fmt.Sprintf("%s%s", i.Name.String(), tag)
}

// ParseRef parses a string representation of an image ref into a
// Ref value. The first path element is taken as the registry domain
// if it looks like a host (contains a dot or a port, or is
// localhost). The grammar is shown here:
// https://github.com/docker/distribution/blob/master/reference/reference.go
// (but we do not care about all the productions.)
func ParseRef(s string) (Ref, error) {
	var id Ref
	if s == "" {
		return id, errors.Wrapf(ErrBlankImageID, "parsing %q", s)
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return id, errors.Wrapf(ErrMalformedImageID, "parsing %q", s)
	}

	elements := strings.Split(s, "/")
	switch len(elements) {
	case 1: // no slashes, e.g., "alpine:1.5"; no registry
		id.Image = s
	default:
		if domainRegexp.MatchString(elements[0]) {
			id.Domain = elements[0]
			id.Image = strings.Join(elements[1:], "/")
		} else {
			id.Image = s
		}
	}

	// Figure out if there's a tag
	imageParts := strings.Split(id.Image, ":")
	switch len(imageParts) {
	case 1:
		break
	case 2:
		if imageParts[0] == "" || imageParts[1] == "" {
			return id, errors.Wrapf(ErrMalformedImageID, "parsing %q", s)
		}
		id.Image = imageParts[0]
		id.Tag = imageParts[1]
	default:
		return id, errors.Wrapf(ErrMalformedImageID, "parsing %q", s)
	}

	return id, nil
}

var (
	domainComponent = `([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9])`
	domain          = fmt.Sprintf(`^(localhost(:[0-9]+)?|(%s([.]%s)+)(:[0-9]+)?|%s:[0-9]+)$`, domainComponent, domainComponent, domainComponent)
	domainRegexp    = regexp.MustCompile(domain)
)

// Ref is serialized/deserialized as a string
func (i Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

// Ref is serialized/deserialized as a string
func (i *Ref) UnmarshalJSON(data []byte) (err error) {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*i, err = ParseRef(str)
	return err
}

// MarshalYAML lets refs appear as plain strings in YAML documents.
func (i Ref) MarshalYAML() (interface{}, error) {
	return i.String(), nil
}

func (i Ref) Components() (domain, repo, tag string) {
	return i.Domain, i.Image, i.Tag
}

// WithNewTag makes a new copy of a Ref with a new tag
func (i Ref) WithNewTag(t string) Ref {
	var img Ref
	img = i
	img.Tag = t
	return img
}
