package errors

import (
	"encoding/json"
	"errors"
)

// Representation of errors shown to whoever is running a promotion
// or looking at the monitor. These are divided into a small number
// of categories, essentially distinguished by whose fault the error
// is; i.e., is this error:
//  - a transient problem with a registry or the cluster, so worth trying again?
//  - not going to work until the user takes some other action, e.g., fixing config?
type Error struct {
	Type Type
	// a message that can be printed out for the user
	Help string `json:"help"`
	// the underlying error that can be e.g., logged for developers to look at
	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

// Unwrap gives errors.Is and errors.As access to the underlying
// error.
func (e *Error) Unwrap() error {
	return e.Err
}

type Type string

const (
	// The operation looked fine on paper, but something went wrong
	Server Type = "server"
	// The thing you mentioned, whatever it is, just doesn't exist
	Missing = "missing"
	// The operation was well-formed, but you asked for something that
	// can't happen at present (e.g., because another promotion holds
	// the lock, or you've not supplied some config yet)
	User = "user"
)

func IsMissing(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Type == Missing {
		return true
	}
	return false
}

// HelpFor returns the help text attached to an error, if there is
// one anywhere in its chain.
func HelpFor(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Help != "" {
		return e.Help, true
	}
	return "", false
}

func (e *Error) MarshalJSON() ([]byte, error) {
	var errMsg string
	if e.Err != nil {
		errMsg = e.Err.Error()
	}
	jsonable := &struct {
		Type string `json:"type"`
		Help string `json:"help"`
		Err  string `json:"error,omitempty"`
	}{
		Type: string(e.Type),
		Help: e.Help,
		Err:  errMsg,
	}
	return json.Marshal(jsonable)
}

func (e *Error) UnmarshalJSON(data []byte) error {
	jsonable := &struct {
		Type string `json:"type"`
		Help string `json:"help"`
		Err  string `json:"error,omitempty"`
	}{}
	if err := json.Unmarshal(data, &jsonable); err != nil {
		return err
	}
	e.Type = Type(jsonable.Type)
	e.Help = jsonable.Help
	if jsonable.Err != "" {
		e.Err = errors.New(jsonable.Err)
	}
	return nil
}

func CoverAllError(err error) *Error {
	return &Error{
		Type: User,
		Err:  err,
		Help: `Error: ` + err.Error() + `

We don't have a specific help message for the error above.

It would help us remedy this if you log an issue at

    https://github.com/fluxcd/imagepromote/issues

saying what you were doing when you saw this, and quoting the message
at the top.
`,
	}
}
