package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// handleLogin authenticates the bridge admin and issues an HS256 access
// token. These credentials guard the bridge API itself, not any SOMweb
// device account.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	admin := s.cfg.Security.Admin
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(admin.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(admin.Password)) == 1
	if admin.Username == "" || !userOK || !passOK {
		s.log.Warn("rejected login attempt", "username", req.Username)
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttl := time.Duration(s.cfg.Security.JWT.AccessTokenTTL) * time.Minute
	expiresAt := time.Now().Add(ttl)

	claims := jwt.MapClaims{
		"sub": req.Username,
		"iat": time.Now().Unix(),
		"exp": expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Security.JWT.Secret))
	if err != nil {
		s.log.Error("failed to sign access token", "error", err)
		writeInternalError(w, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     signed,
		ExpiresAt: expiresAt.Unix(),
	})
}
