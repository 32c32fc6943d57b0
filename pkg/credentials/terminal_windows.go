package credentials

import "github.com/pkg/errors"

func ReadSecret() (string, error) {
	return "", errors.New("reading passwords from the terminal is not supported on Windows; set the credential environment variables")
}

func ReadKey() (byte, error) {
	return 0, errors.New("interactive confirmation is not supported on Windows; use --force")
}
