// +build !windows

package credentials

import (
	"github.com/pkg/errors"
	"github.com/pkg/term"
)

const (
	keyInterrupt = 3
	keyBackspace = 127
	keyDelete    = 8
)

// ReadSecret reads a line from the controlling terminal in raw mode,
// so nothing typed is echoed.
func ReadSecret() (string, error) {
	t, err := term.Open("/dev/tty")
	if err != nil {
		return "", errors.Wrap(err, "opening terminal")
	}
	defer t.Close()
	if err := term.RawMode(t); err != nil {
		return "", errors.Wrap(err, "setting terminal raw mode")
	}
	defer t.Restore()

	var secret []byte
	b := make([]byte, 1)
	for {
		if _, err := t.Read(b); err != nil {
			return "", err
		}
		switch b[0] {
		case '\r', '\n':
			return string(secret), nil
		case keyInterrupt:
			return "", errors.New("interrupted")
		case keyBackspace, keyDelete:
			if len(secret) > 0 {
				secret = secret[:len(secret)-1]
			}
		default:
			secret = append(secret, b[0])
		}
	}
}

// ReadKey reads a single keypress from the controlling terminal.
func ReadKey() (byte, error) {
	t, err := term.Open("/dev/tty")
	if err != nil {
		return 0, errors.Wrap(err, "opening terminal")
	}
	defer t.Close()
	if err := term.RawMode(t); err != nil {
		return 0, errors.Wrap(err, "setting terminal raw mode")
	}
	defer t.Restore()
	b := make([]byte, 1)
	if _, err := t.Read(b); err != nil {
		return 0, err
	}
	return b[0], nil
}
