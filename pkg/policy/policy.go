// Package policy decides which image tags may be promoted. A policy
// is written as kind:expression, e.g. semver:~1.2 or glob:release-*;
// with no kind it is a glob.
package policy

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/ryanuber/go-glob"
)

const (
	kindGlob   = "glob"
	kindSemver = "semver"
	kindRegexp = "regexp"
	// accepted as a spelling of regexp
	kindRegex = "regex"
)

// Any allows every tag. It is the policy when none is configured.
var Any Policy = globPolicy("*")

// Policy gates the tags a promotion will accept.
type Policy interface {
	Allows(tag string) bool
	// String gives the policy back in kind:expression form.
	String() string
}

// Parse reads a policy. Blank input is Any. An expression that does
// not compile is an error; nothing falls back to allowing all tags.
func Parse(s string) (Policy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Any, nil
	}
	kind, expr := kindGlob, s
	if i := strings.Index(s, ":"); i > 0 {
		switch k := s[:i]; k {
		case kindGlob, kindSemver, kindRegexp, kindRegex:
			kind, expr = k, s[i+1:]
		}
	}

	switch kind {
	case kindSemver:
		c, err := semver.NewConstraint(expr)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid tag policy %q", s)
		}
		return semverPolicy{expr: expr, constraints: c}, nil
	case kindRegexp, kindRegex:
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid tag policy %q", s)
		}
		return regexpPolicy{re}, nil
	default:
		return globPolicy(expr), nil
	}
}

type globPolicy string

func (g globPolicy) Allows(tag string) bool { return glob.Glob(string(g), tag) }
func (g globPolicy) String() string         { return kindGlob + ":" + string(g) }

// semverPolicy only allows tags that parse as versions, with or
// without a leading v. Pre-releases need a constraint that names one.
type semverPolicy struct {
	expr        string
	constraints *semver.Constraints
}

func (p semverPolicy) Allows(tag string) bool {
	v, err := semver.NewVersion(tag)
	return err == nil && p.constraints.Check(v)
}

func (p semverPolicy) String() string { return kindSemver + ":" + p.expr }

// regexpPolicy is unanchored; write ^ and $ to match the whole tag.
type regexpPolicy struct {
	re *regexp.Regexp
}

func (p regexpPolicy) Allows(tag string) bool { return p.re.MatchString(tag) }
func (p regexpPolicy) String() string         { return kindRegexp + ":" + p.re.String() }
