package damba

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// tokenClaims is the subset of the JWT payload the service reads
type tokenClaims struct {
	Exp int64 `json:"exp"`
	Sub struct {
		ID string `json:"id"`
	} `json:"sub"`
}

// decodeClaims decodes the middle segment of a three-part token. The payload
// is base64url-encoded JSON; any deviation is a decode error.
func decodeClaims(token string) (*tokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("token does not have three segments")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode token payload: %w", err)
	}
	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse token payload: %w", err)
	}
	return &claims, nil
}

// DecodeExpiry extracts the exp claim in Unix seconds, nil if the token has
// none (such tokens never expire)
func DecodeExpiry(token string) (*int64, error) {
	claims, err := decodeClaims(token)
	if err != nil {
		return nil, err
	}
	if claims.Exp == 0 {
		return nil, nil
	}
	exp := claims.Exp
	return &exp, nil
}

// tokenValid reports whether token is usable at the given instant. Decode
// failure means invalid; a missing exp claim means permanently valid.
func tokenValid(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	exp, err := DecodeExpiry(token)
	if err != nil {
		return false
	}
	if exp == nil {
		return true
	}
	return now.UnixMilli() < *exp*1000
}

// IsAuthenticated recomputes session validity from the stored credential.
// The result is never trusted across calls; every caller gets a fresh check.
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	cfg, err := s.store.GetAppConfig(ctx)
	if err != nil {
		s.logger.Error("failed to read credential", "error", err)
		s.authenticated.Store(false)
		return false
	}
	ok := tokenValid(cfg.DambaToken, s.now())
	s.authenticated.Store(ok)
	return ok
}

// Authenticate injects the stored credential into the page's client-side
// storage, applies the map feature flags, forces the authenticated route and
// persists the resulting localStorage blob as the alert snapshot baseline.
// The browser session must already be started.
func (s *Service) Authenticate(ctx context.Context) error {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()
	return s.authenticateLocked(ctx)
}

func (s *Service) authenticateLocked(ctx context.Context) error {
	cfg, err := s.store.GetAppConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to read credential: %w", err)
	}
	if !tokenValid(cfg.DambaToken, s.now()) {
		s.authenticated.Store(false)
		return ErrNotAuthenticated
	}

	if err := s.page.Navigate(ctx, s.opts.DambaURL); err != nil {
		s.authenticated.Store(false)
		return fmt.Errorf("failed to open map service: %w", err)
	}

	script, err := s.injectionScript(cfg.DambaToken, cfg.TokenExpiresAt.Int64, cfg.MapCenter)
	if err != nil {
		return err
	}
	if err := s.page.Evaluate(ctx, script, nil); err != nil {
		s.authenticated.Store(false)
		return fmt.Errorf("failed to inject session: %w", err)
	}

	// The script switches location to /map; wait for the new document
	if err := s.waitStable(ctx); err != nil {
		return fmt.Errorf("map page did not load: %w", err)
	}

	// Seed the diff baseline so the first alert poll has a prior state
	blob, err := s.readStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page storage: %w", err)
	}
	if err := s.store.SaveAlertsSnapshot(ctx, blob); err != nil {
		return err
	}

	s.authenticated.Store(true)
	s.logger.Info("authenticated to map service")
	return nil
}

// injectionScript builds the in-page script that writes the refresh token,
// the fixed feature flags and the map center into browser storage, then
// forces the authenticated route.
func (s *Service) injectionScript(token string, expiresAt int64, mapCenter string) (string, error) {
	claims, err := decodeClaims(token)
	if err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}

	mapCenterLine := ""
	if mapCenter != "" && claims.Sub.ID != "" {
		key, _ := json.Marshal(claims.Sub.ID + "-map-center-coord")
		val, _ := json.Marshal(mapCenter)
		mapCenterLine = fmt.Sprintf("window.localStorage.setItem(%s, %s);", key, val)
	}

	tokenJSON, _ := json.Marshal(token)
	expJSON, _ := json.Marshal(fmt.Sprintf("%d", expiresAt))

	return fmt.Sprintf(`(() => {
	window.sessionStorage.setItem('refresh-token', %s);
	window.sessionStorage.setItem('refresh-token-expires', %s);
	const settings = JSON.parse(window.localStorage.getItem('localUserSettings') || '{}');
	settings.eRocketTargetsEnabled = true;
	settings.sensitiveInformationMode = false;
	settings.alertAreasMode = false;
	settings.radarsTargetsEnabled = true;
	window.localStorage.setItem('localUserSettings', JSON.stringify(settings));
	%s
	document.location.pathname = '/map';
})()`, tokenJSON, expJSON, mapCenterLine), nil
}

// SaveCredential overwrites the stored credential and performs a full session
// reset: the browser is torn down, relaunched and re-authenticated. The map
// service ties cookies and session storage to the browser context, so this is
// the only safe way to apply a new token.
func (s *Service) SaveCredential(ctx context.Context, token string) error {
	exp, err := DecodeExpiry(token)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if err := s.store.SaveDambaToken(ctx, token, exp); err != nil {
		return err
	}

	s.pageMu.Lock()
	defer s.pageMu.Unlock()

	if err := s.page.Restart(ctx); err != nil {
		s.authenticated.Store(false)
		return fmt.Errorf("failed to restart browser: %w", err)
	}
	return s.authenticateLocked(ctx)
}
