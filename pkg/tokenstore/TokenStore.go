// Package tokenstore with persistence of bearer tokens obtained through pairing.
// A paired token is the only credential needed to use a hub, so files are
// restricted to the owner and writes are guarded against concurrent writers.
package tokenstore

import (
	"io"
	"io/ioutil"
	"os"
	"path"
	"strings"
	"time"

	"github.com/juju/fslock"
	"github.com/sirupsen/logrus"

	"github.com/maveohome/maveolib-go/pkg/watcher"
)

// TokenFileExt of stored token files, one file per hub host
const TokenFileExt = ".token"

// lock file guarding against two processes pairing the same hub
const lockFileName = ".tokenstore.lock"

// time to wait for another writer to finish
const lockTimeout = time.Second * 3

// TokenStore persists the bearer token of each hub host
type TokenStore struct {
	folder string
}

// NewTokenStore creates a store for bearer tokens in the given folder
// The folder is created on the first Save.
func NewTokenStore(folder string) *TokenStore {
	return &TokenStore{folder: folder}
}

// TokenFilePath returns the file that holds the token of the given hub host
func (store *TokenStore) TokenFilePath(host string) string {
	return path.Join(store.folder, host+TokenFileExt)
}

// Save stores the token of a hub host, replacing any previous token
// The write is serialized through a lock file so concurrent pairings of the
// same hub by multiple processes do not corrupt the store.
func (store *TokenStore) Save(host string, token string) error {
	if err := os.MkdirAll(store.folder, 0700); err != nil {
		logrus.Errorf("TokenStore.Save: unable to create folder %s: %s", store.folder, err)
		return err
	}
	lock := fslock.New(path.Join(store.folder, lockFileName))
	if err := lock.LockWithTimeout(lockTimeout); err != nil {
		logrus.Errorf("TokenStore.Save: unable to lock the token store: %s", err)
		return err
	}
	defer lock.Unlock()

	tokenFile := store.TokenFilePath(host)
	err := ioutil.WriteFile(tokenFile, []byte(token+"\n"), 0600)
	if err != nil {
		logrus.Errorf("TokenStore.Save: unable to write %s: %s", tokenFile, err)
		return err
	}
	logrus.Infof("TokenStore.Save: stored token for hub %s", host)
	return nil
}

// Load returns the stored token of a hub host
// A missing token file is not an error, it returns an empty token to indicate
// that pairing is still needed.
func (store *TokenStore) Load(host string) (string, error) {
	raw, err := ioutil.ReadFile(store.TokenFilePath(host))
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// Remove deletes the stored token of a hub host, if any
func (store *TokenStore) Remove(host string) error {
	err := os.Remove(store.TokenFilePath(host))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Watch invokes onChange with the re-read token whenever the token file of
// the given host changes. Intended for picking up a pairing done by another
// process. An empty token file is created when none exists yet, as a watch
// needs a file to attach to.
// Close the returned watcher when done.
func (store *TokenStore) Watch(host string, onChange func(token string)) (io.Closer, error) {
	tokenFile := store.TokenFilePath(host)
	if _, err := os.Stat(tokenFile); os.IsNotExist(err) {
		if err = store.Save(host, ""); err != nil {
			return nil, err
		}
	}
	fsWatcher, err := watcher.WatchFile(tokenFile, func(changedPath string) error {
		token, loadErr := store.Load(host)
		if loadErr != nil {
			logrus.Errorf("TokenStore.Watch: reload of %s failed: %s", changedPath, loadErr)
			return loadErr
		}
		onChange(token)
		return nil
	}, "tokenstore-"+host)
	return fsWatcher, err
}
