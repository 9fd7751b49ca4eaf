package partner

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/imroc/req/v3"
	"github.com/pkg/errors"

	"recharge-sync/config"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"

const (
	loginMaxRetries = 3
	loginRetryStep  = 2 * time.Second
)

// Session owns the upstream bearer credential: it logs in on demand,
// caches the token with a fixed TTL and refreshes it when forced.
// A single Session is shared by all concurrent fetches.
type Session struct {
	client   *req.Client
	username string
	password string
	origin   string
	ttl      time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type SessionOption func(*Session)

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// WithSleep substitutes the retry delay, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) SessionOption {
	return func(s *Session) {
		s.sleep = sleep
	}
}

func NewSession(cfg *config.Partner, opts ...SessionOption) *Session {
	client := req.C().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout)

	s := &Session{
		client:   client,
		username: cfg.Username,
		password: cfg.Password,
		origin:   cfg.Origin,
		ttl:      cfg.TokenTTL,
		now:      time.Now,
		sleep:    sleepCtx,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Token returns the cached credential while it is fresh, otherwise logs in.
// Login is attempted up to 3 times with increasing delay; a credential
// rejection short-circuits the retries.
func (s *Session) Token(ctx context.Context, forceRefresh bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !forceRefresh && s.token != "" && s.now().Before(s.expiresAt) {
		return s.token, nil
	}

	var lastErr error
	for attempt := 1; attempt <= loginMaxRetries; attempt++ {
		token, err := s.login(ctx)
		if err == nil {
			s.token = token
			s.expiresAt = s.now().Add(s.ttl)
			log.Info("partner login ok", "attempt", attempt, "expiresAt", s.expiresAt)
			return token, nil
		}

		lastErr = err
		if IsAuthError(err) {
			// 账号密码被拒，重试没有意义
			log.Error("partner rejected credentials, stop retrying", "error", err)
			return "", err
		}

		log.Warn("partner login attempt failed", "attempt", attempt, "max", loginMaxRetries, "error", err)
		if attempt < loginMaxRetries {
			if serr := s.sleep(ctx, time.Duration(attempt)*loginRetryStep); serr != nil {
				return "", serr
			}
		}
	}

	return "", errors.Wrap(lastErr, "all partner login attempts failed")
}

// ClearCache drops the cached token. Safe to call repeatedly.
func (s *Session) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

// AuthHeaders composes the full upstream header set including the bearer
// credential, logging in first when needed.
func (s *Session) AuthHeaders(ctx context.Context, extra map[string]string, forceRefresh bool) (map[string]string, error) {
	token, err := s.Token(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}

	return s.composeHeaders(token, extra), nil
}

// composeHeaders builds the browser-shaped header set the upstream panel
// expects, plus the given Authorization value and any extras.
func (s *Session) composeHeaders(authorization string, extra map[string]string) map[string]string {
	headers := map[string]string{
		"User-Agent":         userAgent,
		"Accept":             "application/json, text/plain, */*",
		"Accept-Language":    "zh-CN,zh;q=0.9,en;q=0.8",
		"Content-Type":       "application/json;charset=UTF-8",
		"Authorization":      authorization,
		"sec-ch-ua":          `"Not;A=Brand";v="99", "Google Chrome";v="139", "Chromium";v="139"`,
		"sec-ch-ua-mobile":   "?0",
		"sec-ch-ua-platform": `"macOS"`,
		"sec-fetch-dest":     "empty",
		"sec-fetch-mode":     "cors",
		"sec-fetch-site":     "same-site",
	}
	if s.origin != "" {
		headers["Origin"] = s.origin
		headers["Referer"] = s.origin + "/"
	}
	for k, v := range extra {
		headers[k] = v
	}

	return headers
}

// login performs one POST /login round trip. The returned token already
// carries the Bearer prefix.
func (s *Session) login(ctx context.Context) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", userAgent).
		SetBody(&loginRequest{Username: s.username, Password: s.password}).
		Post("/login")
	if err != nil {
		return "", &TransientError{Op: "login", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &AuthError{Msg: resp.Status}
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", &TransientError{Op: "login", Err: errors.Errorf("http status %s", resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return "", &TransientError{Op: "login", Err: errors.Errorf("unexpected http status %s", resp.Status)}
	}

	var lr loginResponse
	if err = json.Unmarshal(resp.Bytes(), &lr); err != nil {
		return "", &TransientError{Op: "login", Err: errors.Wrap(err, "decode login response")}
	}

	if lr.Code != http.StatusOK {
		// 非 200 业务码按凭证被拒处理，上游用它表达用户名/密码错误
		return "", &AuthError{Msg: lr.errMsg()}
	}
	if lr.Token == "" {
		return "", &AuthError{Msg: "login response missing token"}
	}

	return "Bearer " + lr.Token, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
