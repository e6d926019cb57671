package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/clinicazen/platform/libs/apperr"
	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/libs/db"
	"github.com/clinicazen/platform/libs/httpx"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
)

var (
	errEmailTaken         = apperr.Conflict("Ya existe una cuenta con ese correo electrónico.")
	errInvalidCredentials = &apperr.Error{
		Kind:    apperr.KindUnauthorized,
		Code:    "INVALID_CREDENTIALS",
		Message: "Correo electrónico o contraseña incorrectos.",
	}
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"fullName" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"max=30"`
}

type createUserRequest struct {
	registerRequest
	Role string `json:"role" validate:"required,oneof=CLIENT THERAPIST ADMIN"`
}

type sessionResponse struct {
	User      userView  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (a *API) createAccount(r *http.Request, req registerRequest, role auth.Role) (model.User, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return model.User{}, err
	}
	u, err := a.store.CreateUser(r.Context(), model.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        strings.TrimSpace(req.Phone),
		Role:         string(role),
	})
	if db.IsConflict(err) {
		return model.User{}, errEmailTaken.Wrap(err)
	}
	return u, err
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request, u model.User, status int) {
	token, exp, err := a.tokens.Issue(auth.Principal{UserID: u.ID, Email: u.Email, Name: u.FullName, Role: auth.Role(u.Role)})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.WriteJSON(w, status, sessionResponse{User: toUserView(u), Token: token, ExpiresAt: exp})
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.createAccount(r, req, auth.RoleClient)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.logger.InfoContext(r.Context(), "user registered", "user_id", u.ID)
	a.startSession(w, r, u, http.StatusCreated)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.store.UserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if db.IsNotFound(err) {
		a.fail(w, r, errInvalidCredentials)
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ok, err := auth.CheckPassword(u.PasswordHash, req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !ok {
		a.fail(w, r, errInvalidCredentials)
		return
	}
	a.startSession(w, r, u, http.StatusOK)
}

func (a *API) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	u, err := a.store.UserByID(r.Context(), caller(r).UserID)
	if db.IsNotFound(err) {
		// The token outlived the account.
		a.fail(w, r, apperr.Unauthorized())
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserView(u))
}

func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	role := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("role")))
	if role != "" && !auth.Role(role).Valid() {
		a.fail(w, r, apperr.Validation("role no es válido", map[string]string{"role": "debe ser uno de: CLIENT, THERAPIST, ADMIN"}))
		return
	}
	list, err := a.store.ListUsers(r.Context(), role)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]userView, 0, len(list))
	for _, u := range list {
		out = append(out, toUserView(u))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (a *API) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.createAccount(r, req.registerRequest, auth.Role(req.Role))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.logger.InfoContext(r.Context(), "user created", "user_id", u.ID, "role", u.Role, "by", caller(r).UserID)
	httpx.WriteJSON(w, http.StatusCreated, toUserView(u))
}

type updateRoleRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
	Role   string `json:"role" validate:"required,oneof=CLIENT THERAPIST ADMIN"`
}

func (a *API) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.store.UpdateUserRole(r.Context(), req.UserID, req.Role)
	if err != nil {
		a.fail(w, r, notFound(err, "Usuario no encontrado."))
		return
	}
	a.logger.InfoContext(r.Context(), "user role changed", "user_id", u.ID, "role", u.Role, "by", caller(r).UserID)
	httpx.WriteJSON(w, http.StatusOK, toUserView(u))
}
