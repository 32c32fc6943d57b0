// Package credentials supplies the usernames and passwords used to log
// in to the source and target registries. Credentials are held in
// memory for the duration of a promotion and never written anywhere.
package credentials

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Basic is a username and password for one registry.
type Basic struct {
	Username string
	Password string
}

// String never includes the password, so a Basic can be logged
// without leaking it.
func (b Basic) String() string {
	if b.Password == "" {
		return b.Username
	}
	return b.Username + ":<redacted>"
}

// GoString stops %#v from printing the password too.
func (b Basic) GoString() string {
	return fmt.Sprintf("credentials.Basic{Username:%q, Password:<redacted>}", b.Username)
}

func (b Basic) Complete() bool {
	return b.Username != "" && b.Password != ""
}

// Credentials for both ends of a promotion.
type Credentials struct {
	Source Basic
	Target Basic
}

func (c Credentials) Complete() bool {
	return c.Source.Complete() && c.Target.Complete()
}

func (c Credentials) String() string {
	return fmt.Sprintf("source=%s target=%s", c.Source, c.Target)
}

// Provider fills in whatever is missing from the credentials given.
type Provider interface {
	Fill(ctx context.Context, have Credentials) (Credentials, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(context.Context, Credentials) (Credentials, error)

func (f ProviderFunc) Fill(ctx context.Context, have Credentials) (Credentials, error) {
	return f(ctx, have)
}

// Chain asks each provider in turn, stopping as soon as the
// credentials are complete.
func Chain(providers ...Provider) Provider {
	return ProviderFunc(func(ctx context.Context, have Credentials) (Credentials, error) {
		var err error
		for _, p := range providers {
			if have.Complete() {
				break
			}
			if have, err = p.Fill(ctx, have); err != nil {
				return Credentials{}, err
			}
		}
		if !have.Complete() {
			return Credentials{}, ErrIncomplete
		}
		return have, nil
	})
}

// ErrIncomplete is returned by Chain when no provider could supply
// every value.
var ErrIncomplete = errors.New("registry credentials are incomplete")

// Environment variables consulted by Env. The NEXUS_ and HARBOR_
// names take precedence over the generic ones.
var (
	SourceUsernameVars = []string{"NEXUS_USERNAME", "SOURCE_USERNAME"}
	SourcePasswordVars = []string{"NEXUS_PASSWORD", "SOURCE_PASSWORD"}
	TargetUsernameVars = []string{"HARBOR_USERNAME", "TARGET_USERNAME"}
	TargetPasswordVars = []string{"HARBOR_PASSWORD", "TARGET_PASSWORD"}
)

// Env reads credentials from the environment. They are only used when
// all four values are present; a partial set is ignored so that the
// prompt asks for everything rather than mixing sources.
type Env struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

func (e Env) Fill(_ context.Context, have Credentials) (Credentials, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	first := func(names []string) string {
		for _, n := range names {
			if v, ok := lookup(n); ok && v != "" {
				return v
			}
		}
		return ""
	}
	found := Credentials{
		Source: Basic{Username: first(SourceUsernameVars), Password: first(SourcePasswordVars)},
		Target: Basic{Username: first(TargetUsernameVars), Password: first(TargetPasswordVars)},
	}
	if !found.Complete() {
		return have, nil
	}
	return found, nil
}
