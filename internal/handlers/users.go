package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jjudge-oj/accounts/internal/apperror"
	"github.com/jjudge-oj/accounts/internal/logging"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/types"
)

const (
	formFieldAvatar       = "avatar"
	maxMultipartMemory    = 4 << 20
	maxAvatarRequestBytes = 8 << 20
)

var errAvatarMissing = apperror.Validation("Please upload an image.")

// UserHandler serves the account routes under /users.
type UserHandler struct {
	users       *services.UserService
	credentials *services.CredentialService
	avatars     *services.AvatarService
	notifier    *services.Notifier
	logger      logging.Logger
}

func NewUserHandler(
	users *services.UserService,
	credentials *services.CredentialService,
	avatars *services.AvatarService,
	notifier *services.Notifier,
	logger logging.Logger,
) *UserHandler {
	return &UserHandler{
		users:       users,
		credentials: credentials,
		avatars:     avatars,
		notifier:    notifier,
		logger:      logger.With("component", "user_handler"),
	}
}

// UserRouter registers account routes on the given router.
func UserRouter(r chi.Router, h *UserHandler) {
	auth := RequireAuth(h.credentials, h.logger)

	r.Post("/", h.Register)
	r.Post("/login", h.Login)
	r.Get("/{userID}/avatar", h.GetAvatar)

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Post("/logout", h.Logout)
		r.Post("/logoutAll", h.LogoutAll)
		r.Get("/me", h.Me)
		r.Patch("/me", h.UpdateMe)
		r.Delete("/me", h.DeleteMe)
		r.Post("/me/avatar", h.UploadAvatar)
		r.Delete("/me/avatar", h.DeleteAvatar)
	})
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

// Register creates an account, sends the welcome email and opens a first session.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.Create(r.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Age:      req.Age,
	})
	if err != nil {
		h.writeAppError(w, r, err, "failed to create user")
		return
	}

	h.notifier.NotifyWelcome(r.Context(), user.Email, user.Name)

	token, err := h.credentials.IssueToken(r.Context(), user)
	if err != nil {
		h.writeAppError(w, r, err, "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{User: user, Token: token})
}

// Login answers every failure with an empty 400.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEmpty(w, http.StatusBadRequest)
		return
	}

	user, err := h.users.FindForLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logUnexpected(r, err)
		writeEmpty(w, http.StatusBadRequest)
		return
	}

	token, err := h.credentials.IssueToken(r.Context(), user)
	if err != nil {
		h.logUnexpected(r, err)
		writeEmpty(w, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{User: user, Token: token})
}

// Logout revokes only the token that authenticated the request.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	if err := h.credentials.RevokeToken(r.Context(), session.User, session.Token); err != nil {
		h.logUnexpected(r, err)
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	writeEmpty(w, http.StatusOK)
}

func (h *UserHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	if err := h.credentials.RevokeAllTokens(r.Context(), session.User); err != nil {
		h.logUnexpected(r, err)
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	writeEmpty(w, http.StatusOK)
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, session.User)
}

// UpdateMe applies an allow-listed partial update. Only a disallowed key gets
// an error body; every other failure is an empty 400.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	var updates map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeEmpty(w, http.StatusBadRequest)
		return
	}

	user, err := h.users.ApplyPartialUpdate(r.Context(), session.User, updates)
	if err != nil {
		if errors.Is(err, services.ErrInvalidUpdates) {
			writeError(w, http.StatusBadRequest, services.ErrInvalidUpdates.Message)
			return
		}
		h.logUnexpected(r, err)
		writeEmpty(w, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteMe removes the account, then clears its avatar and sends the
// cancellation email. Neither follow-up affects the response.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	user := session.User

	if err := h.users.Remove(r.Context(), user); err != nil {
		h.logUnexpected(r, err)
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	if err := h.avatars.Remove(r.Context(), user); err != nil {
		h.logger.Warn(r.Context(), "failed to remove avatar of deleted user", "user_id", user.ID, "error", err)
	}
	h.notifier.NotifyCancellation(r.Context(), user.Email, user.Name)

	writeJSON(w, http.StatusOK, user)
}

// UploadAvatar reads the multipart "avatar" file and stores it as a 250x250 PNG.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarRequestBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, services.ErrAvatarTooLarge.Message)
			return
		}
		writeError(w, http.StatusBadRequest, errAvatarMissing.Message)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(formFieldAvatar)
	if err != nil {
		writeError(w, http.StatusBadRequest, errAvatarMissing.Message)
		return
	}
	data, err := readFileLimited(file, services.AvatarMaxBytes)
	_ = file.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.avatars.Upload(r.Context(), session.User, data, header.Filename); err != nil {
		h.writeAppError(w, r, err, "failed to upload avatar")
		return
	}
	writeEmpty(w, http.StatusOK)
}

func (h *UserHandler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeEmpty(w, http.StatusInternalServerError)
		return
	}

	if err := h.avatars.Remove(r.Context(), session.User); err != nil {
		h.logUnexpected(r, err)
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	writeEmpty(w, http.StatusOK)
}

// GetAvatar serves a user's avatar. Any failure is an empty 404.
func (h *UserHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.avatars.Fetch(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.logUnexpected(r, err)
		writeEmpty(w, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writeAppError answers with the error's status and client-safe message.
func (h *UserHandler) writeAppError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		appErr = apperror.Internal(fallback, err)
	}
	h.logUnexpected(r, appErr)
	writeError(w, appErr.StatusCode(), appErr.Message)
}

// logUnexpected records internal failures. Expected client errors are not logged.
func (h *UserHandler) logUnexpected(r *http.Request, err error) {
	if apperror.KindOf(err) != apperror.KindInternal {
		return
	}
	h.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
}
