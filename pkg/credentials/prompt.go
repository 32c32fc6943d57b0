package credentials

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Prompt asks on the terminal for any value still missing. Usernames
// are read as lines from In; passwords come from ReadSecret, which
// by default reads from the controlling terminal with echo off.
type Prompt struct {
	In         io.Reader
	Out        io.Writer
	ReadSecret func() (string, error)
}

func (p Prompt) Fill(ctx context.Context, have Credentials) (Credentials, error) {
	readSecret := p.ReadSecret
	if readSecret == nil {
		readSecret = ReadSecret
	}
	lines := bufio.NewReader(p.In)

	ask := func(label string, secret bool) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprintf(p.Out, "%s: ", label)
		if secret {
			v, err := readSecret()
			fmt.Fprintln(p.Out)
			return v, errors.Wrapf(err, "reading %s", label)
		}
		v, err := lines.ReadString('\n')
		if err != nil && (err != io.EOF || v == "") {
			return "", errors.Wrapf(err, "reading %s", label)
		}
		return strings.TrimSpace(v), nil
	}

	fill := func(b *Basic, which string) error {
		var err error
		if b.Username == "" {
			if b.Username, err = ask(which+" registry username", false); err != nil {
				return err
			}
		}
		if b.Password == "" {
			if b.Password, err = ask(which+" registry password", true); err != nil {
				return err
			}
		}
		return nil
	}
	if err := fill(&have.Source, "Source"); err != nil {
		return Credentials{}, err
	}
	if err := fill(&have.Target, "Target"); err != nil {
		return Credentials{}, err
	}
	return have, nil
}
