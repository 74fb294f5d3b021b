package httpapi

import (
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/server/models"
	"github.com/keyfold/keyfold/internal/server/repositories/users"
	"github.com/keyfold/keyfold/internal/server/services"
)

// Binary SRP values travel as lowercase hex strings on the wire.

type srp1Request struct {
	Email             string `json:"email"`
	ProviderAuthToken string `json:"providerAuthToken,omitempty"`
	ClientPublicKey   string `json:"clientPublicKey"`
}

type srp1Response struct {
	Salt            string `json:"salt"`
	ServerPublicKey string `json:"serverPublicKey"`
}

type srp2Request struct {
	Email             string `json:"email"`
	ProviderAuthToken string `json:"providerAuthToken,omitempty"`
	ClientProof       string `json:"clientProof"`
}

type mfaVerifyRequest struct {
	Email    string `json:"email"`
	MFAToken string `json:"mfaToken"`
	MFACode  string `json:"mfaCode"`
}

// loginResponse is the completed-login payload: the access token plus the
// sealed key material the client needs to derive its local decryption key.
// The refresh token never appears in a body; it travels only as the jid
// cookie.
type loginResponse struct {
	MFAEnabled          bool   `json:"mfaEnabled"`
	Token               string `json:"token"`
	PublicKey           string `json:"publicKey"`
	EncryptedPrivateKey string `json:"encryptedPrivateKey"`
	IV                  string `json:"iv"`
	Tag                 string `json:"tag"`
	ProtectedKey        string `json:"protectedKey,omitempty"`
	ProtectedKeyIV      string `json:"protectedKeyIV,omitempty"`
	ProtectedKeyTag     string `json:"protectedKeyTag,omitempty"`
	EncryptionVersion   int    `json:"encryptionVersion"`
}

type mfaChallengeResponse struct {
	MFAEnabled bool   `json:"mfaEnabled"`
	Token      string `json:"token"`
}

type refreshResponse struct {
	Token string `json:"token"`
}

type signupRequest struct {
	Token               string `json:"token"`
	Salt                string `json:"salt"`
	Verifier            string `json:"verifier"`
	PublicKey           string `json:"publicKey"`
	EncryptedPrivateKey string `json:"encryptedPrivateKey"`
	IV                  string `json:"iv"`
	Tag                 string `json:"tag"`
	ProtectedKey        string `json:"protectedKey"`
	ProtectedKeyIV      string `json:"protectedKeyIV"`
	ProtectedKeyTag     string `json:"protectedKeyTag"`
	EncryptionVersion   int    `json:"encryptionVersion"`
}

type changePasswordRequest struct {
	ClientProof         string `json:"clientProof"`
	Salt                string `json:"salt"`
	Verifier            string `json:"verifier"`
	EncryptedPrivateKey string `json:"encryptedPrivateKey"`
	IV                  string `json:"iv"`
	Tag                 string `json:"tag"`
	ProtectedKey        string `json:"protectedKey"`
	ProtectedKeyIV      string `json:"protectedKeyIV"`
	ProtectedKeyTag     string `json:"protectedKeyTag"`
	EncryptionVersion   int    `json:"encryptionVersion"`
}

func decodeHexField(name, value string) ([]byte, error) {
	b, err := hex.DecodeString(value)
	if err != nil || len(b) == 0 {
		return nil, fmt.Errorf("field %s is not valid hex: %w", name, common.ErrBadRequest)
	}
	return b, nil
}

func (s *Server) handleSRP1(w http.ResponseWriter, r *http.Request) {
	var req srp1Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	clientPub, err := decodeHexField("clientPublicKey", req.ClientPublicKey)
	if err != nil {
		writeError(w, err)
		return
	}

	salt, serverPub, err := s.login.Login1(r.Context(), req.Email, req.ProviderAuthToken, clientPub)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, srp1Response{
		Salt:            hex.EncodeToString(salt),
		ServerPublicKey: hex.EncodeToString(serverPub),
	})
}

func (s *Server) handleSRP2(w http.ResponseWriter, r *http.Request) {
	var req srp2Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	proof, err := decodeHexField("clientProof", req.ClientProof)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.login.Login2(r.Context(), req.Email, req.ProviderAuthToken, proof, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}

	if result.MFAEnabled {
		writeJSON(w, http.StatusOK, mfaChallengeResponse{MFAEnabled: true, Token: result.MFAToken})
		return
	}
	s.finishLoginResponse(w, result)
}

func (s *Server) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.login.VerifyMFA(r.Context(), req.Email, req.MFAToken, req.MFACode, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	s.finishLoginResponse(w, result)
}

// handleRefresh exchanges the jid cookie for a fresh access token. A
// missing cookie is indistinguishable from a revoked one to the caller.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, fmt.Errorf("no refresh cookie: %w", common.ErrUnauthorized))
		return
	}

	accessToken, err := s.tokens.Refresh(r.Context(), cookie.Value)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{Token: accessToken})
}

func (s *Server) handleCompleteSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	salt, err := decodeHexField("salt", req.Salt)
	if err != nil {
		writeError(w, err)
		return
	}
	verifier, err := decodeHexField("verifier", req.Verifier)
	if err != nil {
		writeError(w, err)
		return
	}

	reg := &services.Registration{
		Salt:                salt,
		Verifier:            verifier,
		PublicKey:           req.PublicKey,
		EncryptedPrivateKey: req.EncryptedPrivateKey,
		PrivateKeyIV:        req.IV,
		PrivateKeyTag:       req.Tag,
		ProtectedKey:        req.ProtectedKey,
		ProtectedKeyIV:      req.ProtectedKeyIV,
		ProtectedKeyTag:     req.ProtectedKeyTag,
		EncryptionVersion:   models.EncryptionVersion(req.EncryptionVersion),
	}

	result, err := s.login.CompleteSignup(r.Context(), req.Token, reg, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	s.finishLoginResponse(w, result)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	if principal == nil || principal.TokenVersionID == "" {
		writeError(w, fmt.Errorf("logout requires a session token: %w", common.ErrUnauthorized))
		return
	}

	if err := s.tokens.Revoke(r.Context(), principal.TokenVersionID); err != nil {
		writeError(w, err)
		return
	}

	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	if principal == nil || principal.UserID == "" {
		writeError(w, fmt.Errorf("password change requires a user credential: %w", common.ErrUnauthorized))
		return
	}

	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	proof, err := decodeHexField("clientProof", req.ClientProof)
	if err != nil {
		writeError(w, err)
		return
	}
	salt, err := decodeHexField("salt", req.Salt)
	if err != nil {
		writeError(w, err)
		return
	}
	verifier, err := decodeHexField("verifier", req.Verifier)
	if err != nil {
		writeError(w, err)
		return
	}

	keys := &users.AuthKeys{
		Salt:                salt,
		Verifier:            verifier,
		EncryptedPrivateKey: req.EncryptedPrivateKey,
		PrivateKeyIV:        req.IV,
		PrivateKeyTag:       req.Tag,
		ProtectedKey:        req.ProtectedKey,
		ProtectedKeyIV:      req.ProtectedKeyIV,
		ProtectedKeyTag:     req.ProtectedKeyTag,
		EncryptionVersion:   models.EncryptionVersion(req.EncryptionVersion),
	}
	if err := s.login.ChangePassword(r.Context(), principal.UserID, proof, keys); err != nil {
		writeError(w, err)
		return
	}

	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) finishLoginResponse(w http.ResponseWriter, result *services.LoginResult) {
	s.setRefreshCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusOK, loginResponse{
		MFAEnabled:          false,
		Token:               result.AccessToken,
		PublicKey:           result.PublicKey,
		EncryptedPrivateKey: result.EncryptedPrivateKey,
		IV:                  result.PrivateKeyIV,
		Tag:                 result.PrivateKeyTag,
		ProtectedKey:        result.ProtectedKey,
		ProtectedKeyIV:      result.ProtectedKeyIV,
		ProtectedKeyTag:     result.ProtectedKeyTag,
		EncryptionVersion:   int(result.EncryptionVersion),
	})
}
