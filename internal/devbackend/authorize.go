package devbackend

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/server"
)

// AuthConfig enables the development authorize endpoint, which signs in as
// User without prompting.
type AuthConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	User       domain.Identity
	TokenTTL   time.Duration
}

type idTokenClaims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Nonce string `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

// IssueIDToken signs an id token for identity.
func IssueIDToken(cfg AuthConfig, identity domain.Identity, nonce string, now time.Time) (string, error) {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	claims := idTokenClaims{
		Name:  identity.DisplayName,
		Email: identity.Email,
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return signed, nil
}

// handleAuthorize redirects straight back to the loopback redirect_uri with
// a signed id token for the configured user.
func (b *Backend) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || !isLoopback(redirect) {
		writeError(w, http.StatusBadRequest, "redirect_uri must be a loopback http URL")
		return
	}
	if q.Get("response_type") != "id_token" {
		writeError(w, http.StatusBadRequest, "unsupported response_type")
		return
	}

	token, err := IssueIDToken(*b.auth, b.auth.User, q.Get("nonce"), time.Now())
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	server.AddLogField(r.Context(), "user_id", b.auth.User.ID)

	params := url.Values{}
	params.Set("state", q.Get("state"))
	params.Set("id_token", token)
	redirect.RawQuery = params.Encode()

	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func isLoopback(u *url.URL) bool {
	if u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
