package broker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTokenFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "schwab_tokens.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestFileTokenSourceValid(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Format(time.RFC3339)
	path := writeTokenFile(t, t.TempDir(), `{"access_token":"abc","refresh_token":"r","token_expiry":"`+expiry+`"}`)

	src := NewFileTokenSource(path)
	tok, err := src.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	// Cached: the file can disappear without affecting a fresh token.
	require.NoError(t, os.Remove(path))
	tok, err = src.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestFileTokenSourceZoneLessExpiry(t *testing.T) {
	expiry := time.Now().Add(2 * time.Hour).Format("2006-01-02T15:04:05.999999")
	path := writeTokenFile(t, t.TempDir(), `{"access_token":"abc","token_expiry":"`+expiry+`"}`)
	_, err := NewFileTokenSource(path).AccessToken(context.Background())
	require.NoError(t, err)
}

func TestFileTokenSourceExpired(t *testing.T) {
	expiry := time.Now().Add(-time.Minute).Format(time.RFC3339)
	path := writeTokenFile(t, t.TempDir(), `{"access_token":"abc","token_expiry":"`+expiry+`"}`)
	_, err := NewFileTokenSource(path).AccessToken(context.Background())
	assert.True(t, errors.Is(err, ErrAuth))
}

func TestFileTokenSourceRereadsNearExpiry(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	path := writeTokenFile(t, dir, `{"access_token":"old","token_expiry":"`+now.Add(90*time.Second).Format(time.RFC3339)+`"}`)

	src := NewFileTokenSource(path)
	tok, err := src.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old", tok)

	writeTokenFile(t, dir, `{"access_token":"new","token_expiry":"`+now.Add(time.Hour).Format(time.RFC3339)+`"}`)
	src.now = func() time.Time { return now.Add(45 * time.Second) }
	tok, err = src.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", tok)
}

func TestFileTokenSourceErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"missing file": filepath.Join(dir, "absent.json"),
		"no token":     writeTokenFile(t, t.TempDir(), `{"refresh_token":"r"}`),
		"bad expiry":   writeTokenFile(t, t.TempDir(), `{"access_token":"a","token_expiry":"tomorrow"}`),
		"bad json":     writeTokenFile(t, t.TempDir(), `{`),
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewFileTokenSource(path).AccessToken(context.Background())
			assert.True(t, errors.Is(err, ErrAuth), "got %v", err)
		})
	}
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("x").AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", tok)
	_, err = StaticToken("").AccessToken(context.Background())
	assert.True(t, errors.Is(err, ErrAuth))
}
