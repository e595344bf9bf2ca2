package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// TokenSource supplies a bearer token for API calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a fixed token, used in tests.
type StaticToken string

func (t StaticToken) AccessToken(context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuth)
	}
	return string(t), nil
}

type tokenFile struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenExpiry  string `json:"token_expiry"`
}

// tokenExpiryLayouts covers RFC 3339 and the zone-less ISO form written by
// the external refresh tool.
var tokenExpiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// FileTokenSource reads the OAuth token file kept fresh by an external
// refresher. The file is re-read whenever the cached token is close to expiry.
type FileTokenSource struct {
	path string
	skew time.Duration
	now  func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewFileTokenSource(path string) *FileTokenSource {
	return &FileTokenSource{path: path, skew: time.Minute, now: time.Now}
}

func (s *FileTokenSource) AccessToken(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && (s.expiry.IsZero() || s.now().Add(s.skew).Before(s.expiry)) {
		return s.token, nil
	}
	if err := s.loadLocked(); err != nil {
		return "", err
	}
	if !s.expiry.IsZero() && !s.now().Before(s.expiry) {
		return "", fmt.Errorf("%w: access token in %s expired at %s", ErrAuth, s.path, s.expiry.Format(time.RFC3339))
	}
	return s.token, nil
}

func (s *FileTokenSource) loadLocked() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("%w: read token file: %v", ErrAuth, err)
	}
	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("%w: parse token file: %v", ErrAuth, err)
	}
	if tf.AccessToken == "" {
		return fmt.Errorf("%w: token file %s has no access_token", ErrAuth, s.path)
	}
	s.token = tf.AccessToken
	s.expiry = time.Time{}
	if tf.TokenExpiry != "" {
		for _, layout := range tokenExpiryLayouts {
			if t, err := time.ParseInLocation(layout, tf.TokenExpiry, time.Local); err == nil {
				s.expiry = t
				break
			}
		}
		if s.expiry.IsZero() {
			return fmt.Errorf("%w: unparseable token_expiry %q", ErrAuth, tf.TokenExpiry)
		}
	}
	return nil
}
