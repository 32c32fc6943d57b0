// Package lock keeps two promotions from running at once on the same
// host. The lock is a file holding the owner's PID; a file left
// behind by a process that has since died is reclaimed.
package lock

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const DefaultPath = "/tmp/imagepromote.lock"

// Grace is how long an unreadable lock file is assumed to belong to
// a live process.
var Grace = 10 * time.Second

// ErrContention means a live process holds the lock.
var ErrContention = errors.New("another promotion is in progress")

// Record is what is written to the lock file.
type Record struct {
	PID      int       `json:"pid"`
	Acquired time.Time `json:"acquired"`
}

type Manager struct {
	Path string
	// PID of this process; defaults to os.Getpid.
	PID func() int
	// Alive reports whether a process exists; defaults to ProcessAlive.
	Alive func(pid int) bool
	// Now defaults to time.Now.
	Now func() time.Time
}

func New(path string) *Manager {
	return &Manager{Path: path}
}

func (m *Manager) pid() int {
	if m.PID != nil {
		return m.PID()
	}
	return os.Getpid()
}

func (m *Manager) alive(pid int) bool {
	if m.Alive != nil {
		return m.Alive(pid)
	}
	return ProcessAlive(pid)
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Acquire takes the lock, or returns an error wrapping ErrContention
// if a live process has it. A stale lock is removed and acquisition
// tried once more. A record that cannot be read is only treated as
// stale once it is older than Grace.
func (m *Manager) Acquire() error {
	err := m.create()
	if err == nil || !os.IsExist(errors.Cause(err)) {
		return err
	}

	owner, readErr := m.Owner()
	switch {
	case readErr == nil && owner.PID > 0 && m.alive(owner.PID):
		return errors.Wrapf(ErrContention, "lock %s held by pid %d since %s", m.Path, owner.PID, owner.Acquired.Format(time.RFC3339))
	case readErr != nil && !os.IsNotExist(errors.Cause(readErr)) && m.fresh():
		return errors.Wrapf(ErrContention, "lock %s exists but is unreadable: %v", m.Path, readErr)
	}
	if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing stale lock")
	}
	err = m.create()
	if err != nil && os.IsExist(errors.Cause(err)) {
		return errors.Wrapf(ErrContention, "lock %s taken while reclaiming it", m.Path)
	}
	return err
}

// fresh reports whether the lock file was modified within Grace.
func (m *Manager) fresh() bool {
	fi, err := os.Stat(m.Path)
	if err != nil {
		return false
	}
	return m.now().Sub(fi.ModTime()) < Grace
}

// create writes the record to a temporary file beside Path and links
// it into place, so Path never exists without a complete record.
// Link fails with EEXIST when Path is already there.
func (m *Manager) create() error {
	tmp, err := ioutil.TempFile(filepath.Dir(m.Path), filepath.Base(m.Path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "creating lock record")
	}
	defer os.Remove(tmp.Name())

	err = json.NewEncoder(tmp).Encode(Record{PID: m.pid(), Acquired: m.now().UTC()})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrap(err, "writing lock record")
	}
	return errors.WithStack(os.Link(tmp.Name(), m.Path))
}

// Owner reads the current lock record.
func (m *Manager) Owner() (Record, error) {
	var r Record
	bs, err := ioutil.ReadFile(m.Path)
	if err != nil {
		return r, errors.WithStack(err)
	}
	if err := json.Unmarshal(bs, &r); err != nil {
		return r, errors.Wrap(err, "parsing lock record")
	}
	return r, nil
}

// Release removes the lock if this process holds it. Releasing a
// lock that is not there is not an error; one held by another
// process is left alone.
func (m *Manager) Release() error {
	owner, err := m.Owner()
	switch {
	case os.IsNotExist(errors.Cause(err)):
		return nil
	case err != nil:
		return errors.Wrap(err, "releasing lock")
	case owner.PID != m.pid():
		return errors.Errorf("lock %s is held by pid %d, not releasing it", m.Path, owner.PID)
	}
	if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "releasing lock")
	}
	return nil
}

// ProcessAlive sends signal 0 to pid. EPERM means the process exists
// but belongs to someone else.
func ProcessAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
