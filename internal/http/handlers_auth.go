package http

import (
	"log/slog"
	"net/http"

	applog "spendtrack/internal/log"
)

// handleRegister creates a new account. Validation failures and duplicate
// emails both come back as 400 with the failure in the error body.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}

	if err := s.identity.Register(r.Context(), sanitizeInput(req.Name), sanitizeInput(req.Email), req.Password); err != nil {
		FromError(err).Write(w)
		return
	}

	NewResponse().
		JSON(map[string]string{"message": "account created"}).
		Write(w)
}

// handleLogin exchanges credentials for a bearer token. Unknown emails and
// wrong passwords produce the same 401.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}

	result, err := s.identity.Login(r.Context(), sanitizeInput(req.Email), req.Password)
	if err != nil {
		slog.WarnContext(r.Context(), "Login rejected", applog.FieldEmail, sanitizeInput(req.Email))
		FromError(err).Write(w)
		return
	}

	NewResponse().JSON(result).Write(w)
}
