package rest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"antbox-backend/internal/domain/shared"
	"antbox-backend/pkg/errors"
)

// login exchanges the root credentials for a tenant-scoped token.
// Only the root account authenticates with a password; everyone else
// brings an externally issued JWT or an API key.
func (rt *Router) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, rt.logger, err)
		return
	}

	auth := authFrom(r.Context())
	bundle := servicesFrom(r.Context())

	if req.Email != shared.RootUserEmail {
		writeError(w, rt.logger, errors.NewUnauthorizedError("invalid credentials"))
		return
	}

	digest := sha256.Sum256([]byte(req.Password))
	given := hex.EncodeToString(digest[:])
	if subtle.ConstantTimeCompare([]byte(given), []byte(bundle.RootPasswordHash)) != 1 {
		writeError(w, rt.logger, errors.NewUnauthorizedError("invalid credentials"))
		return
	}

	token, err := rt.jwt.Issue(shared.RootUserEmail, []string{shared.AdminsGroupUUID}, auth.Tenant)
	if err != nil {
		writeError(w, rt.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
