package image

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainRegexp(t *testing.T) {
	for _, d := range []string{
		"localhost", "localhost:5000",
		"example.com", "example.com:80",
		"nexus.local", "harbor.local",
		"registry:5000",
	} {
		if !domainRegexp.MatchString(d) {
			t.Errorf("domain regexp did not match %q", d)
		}
	}
	for _, d := range []string{"weaveworks", "library", ""} {
		if domainRegexp.MatchString(d) {
			t.Errorf("domain regexp matched %q", d)
		}
	}
}

func TestNewRef(t *testing.T) {
	for _, x := range []struct {
		registry, name, tag string
		expected            string
		domain, repo        string
	}{
		{"nexus.local", "app", "v1.2.3", "nexus.local/app:v1.2.3", "nexus.local", "app"},
		{"harbor.local", "app", "v1.2.3", "harbor.local/app:v1.2.3", "harbor.local", "app"},
		{"harbor.local/platform", "app", "v1", "harbor.local/platform/app:v1", "harbor.local", "platform/app"},
		{"harbor.local/", "/app", " v1 ", "harbor.local/app:v1", "harbor.local", "app"},
		{"localhost:5000", "path/to/repo", "sha-1", "localhost:5000/path/to/repo:sha-1", "localhost:5000", "path/to/repo"},
	} {
		ref, err := NewRef(x.registry, x.name, x.tag)
		require.NoError(t, err)
		assert.Equal(t, x.expected, ref.String())
		assert.Equal(t, x.domain, ref.Registry())
		assert.Equal(t, x.repo, ref.Repository())
	}
}

func TestNewRefErrorCases(t *testing.T) {
	for _, x := range []struct {
		registry, name, tag string
		cause               error
	}{
		{"", "app", "v1", ErrBlankRegistry},
		{"nexus.local", "", "v1", ErrBlankImageID},
		{"nexus.local", "app", "", ErrBlankTag},
		{"nexus.local", "app", "v1:latest", ErrMalformedImageID},
		{"nexus.local", "app:v1", "v2", ErrMalformedImageID},
	} {
		_, err := NewRef(x.registry, x.name, x.tag)
		require.Error(t, err)
		assert.Equal(t, x.cause, errors.Cause(err))
	}
}

func TestParseRef(t *testing.T) {
	for _, x := range []struct {
		test     string
		registry string
		repo     string
		tag      string
	}{
		{"alpine", "", "alpine", ""},
		{"alpine:mytag", "", "alpine", "mytag"},
		{"weaveworks/scope:1.0", "", "weaveworks/scope", "1.0"},
		{"nexus.local/app:v1.2.3", "nexus.local", "app", "v1.2.3"},
		{"localhost/hello:v1.1", "localhost", "hello", "v1.1"},
		{"localhost:5000/hello:v1.1", "localhost:5000", "hello", "v1.1"},
		{"registry:5000/hello", "registry:5000", "hello", ""},
		{"harbor.local/platform/app:v1", "harbor.local", "platform/app", "v1"},
	} {
		i, err := ParseRef(x.test)
		if err != nil {
			t.Errorf("Failed parsing %q: %s", x.test, err)
		}
		if i.String() != x.test {
			t.Errorf("%q does not stringify as itself; got %q", x.test, i.String())
		}
		assert.Equal(t, x.registry, i.Registry(), x.test)
		assert.Equal(t, x.repo, i.Repository(), x.test)
		assert.Equal(t, x.tag, i.Tag, x.test)
	}
}

func TestParseRefErrorCases(t *testing.T) {
	for _, x := range []string{
		"",
		":tag",
		"/leading/slash",
		"trailing/slash/",
		"nexus.local/app:v1:v2",
		"nexus.local/app:",
	} {
		_, err := ParseRef(x)
		if err == nil {
			t.Fatalf("Expected parse failure for %q", x)
		}
	}
}

func TestRefSerialization(t *testing.T) {
	ref, err := NewRef("harbor.local", "app", "v1.2.3")
	require.NoError(t, err)

	bytes, err := json.Marshal(ref)
	require.NoError(t, err)
	assert.Equal(t, `"harbor.local/app:v1.2.3"`, string(bytes))

	var decoded Ref
	require.NoError(t, json.Unmarshal(bytes, &decoded))
	assert.Equal(t, ref, decoded)
}

func TestWithNewTag(t *testing.T) {
	ref, err := NewRef("nexus.local", "app", "v1")
	require.NoError(t, err)
	next := ref.WithNewTag("v2")
	assert.Equal(t, "nexus.local/app:v2", next.String())
	assert.Equal(t, "nexus.local/app:v1", ref.String())
}
