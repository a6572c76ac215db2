package tokenstore_test

import (
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maveohome/maveolib-go/pkg/hubconfig"
	"github.com/maveohome/maveolib-go/pkg/tokenstore"
)

const testHost = "192.168.2.179"

func TestMain(m *testing.M) {
	hubconfig.SetLogging("info", "")
	os.Exit(m.Run())
}

func TestSaveLoad(t *testing.T) {
	logrus.Infof("--- TestSaveLoad ---")
	store := tokenstore.NewTokenStore(path.Join(t.TempDir(), "tokens"))

	require.NoError(t, store.Save(testHost, "SECRET-1"))
	token, err := store.Load(testHost)
	require.NoError(t, err)
	assert.Equal(t, "SECRET-1", token)

	// a second save replaces the token
	require.NoError(t, store.Save(testHost, "SECRET-2"))
	token, err = store.Load(testHost)
	require.NoError(t, err)
	assert.Equal(t, "SECRET-2", token)
}

func TestTokenFilePermissions(t *testing.T) {
	logrus.Infof("--- TestTokenFilePermissions ---")
	store := tokenstore.NewTokenStore(path.Join(t.TempDir(), "tokens"))
	require.NoError(t, store.Save(testHost, "SECRET"))

	tokenFile := store.TokenFilePath(testHost)
	assert.True(t, strings.HasSuffix(tokenFile, testHost+tokenstore.TokenFileExt))
	info, err := os.Stat(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "tokens are credentials")
}

func TestLoadWithoutToken(t *testing.T) {
	logrus.Infof("--- TestLoadWithoutToken ---")
	store := tokenstore.NewTokenStore(path.Join(t.TempDir(), "tokens"))

	// no folder, no file, no error
	token, err := store.Load(testHost)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestRemove(t *testing.T) {
	logrus.Infof("--- TestRemove ---")
	store := tokenstore.NewTokenStore(path.Join(t.TempDir(), "tokens"))
	require.NoError(t, store.Save(testHost, "SECRET"))

	require.NoError(t, store.Remove(testHost))
	token, err := store.Load(testHost)
	require.NoError(t, err)
	assert.Empty(t, token)

	// removing an absent token is fine
	assert.NoError(t, store.Remove(testHost))
}

func TestWatch(t *testing.T) {
	logrus.Infof("--- TestWatch ---")
	store := tokenstore.NewTokenStore(path.Join(t.TempDir(), "tokens"))
	require.NoError(t, store.Save(testHost, "FIRST"))

	changed := make(chan string, 8)
	closer, err := store.Watch(testHost, func(token string) {
		changed <- token
	})
	require.NoError(t, err)
	defer closer.Close()

	require.NoError(t, store.Save(testHost, "SECOND"))
	select {
	case token := <-changed:
		assert.Equal(t, "SECOND", token)
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification within 3 seconds")
	}
}

func TestWatchCreatesMissingTokenFile(t *testing.T) {
	logrus.Infof("--- TestWatchCreatesMissingTokenFile ---")
	store := tokenstore.NewTokenStore(path.Join(t.TempDir(), "tokens"))

	closer, err := store.Watch(testHost, func(string) {})
	require.NoError(t, err)
	defer closer.Close()

	// the watch attached to a freshly created empty token file
	assert.FileExists(t, store.TokenFilePath(testHost))
	token, err := store.Load(testHost)
	require.NoError(t, err)
	assert.Empty(t, token)
}
