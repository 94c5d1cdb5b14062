package httpserver

import (
	"net/http"
	"time"

	"merrygit_go/internal/domain"
)

type registerRequest struct {
	Name        string `json:"name"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	Avatar      *string   `json:"avatar"`
	LastSeen    time.Time `json:"last_seen"`
}

func toUserResponse(u *domain.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:          u.ID,
		Name:        u.Name,
		Username:    u.Username,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Avatar:      u.Avatar,
		LastSeen:    u.LastSeen,
	}
}

// signInResponse carries the bridge token the UI sends as Bearer from now on.
type signInResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	User        *userResponse   `json:"user"`
	Session     sessionResponse `json:"session"`
}

// @Summary      Register a new user
// @Description  Register with the backend; it mails a one-time code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body registerRequest true "Register input"
// @Success      202  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Router       /auth/register [post]
func handleRegister(auth domain.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Email == "" || req.Password == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
			return
		}

		err := auth.Register(r.Context(), domain.RegisterInput{
			Name:        req.Name,
			Username:    req.Username,
			Email:       req.Email,
			Password:    req.Password,
			PhoneNumber: req.PhoneNumber,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "otp sent"})
	}
}

// @Summary      Verify OTP
// @Description  Confirm the registration code and start the session
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body verifyRequest true "Verify input"
// @Success      201  {object}  signInResponse
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /auth/verify [post]
func handleVerifyOTP(auth domain.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		user, sess, err := auth.VerifyOTP(r.Context(), req.Email, req.OTP)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newSignInResponse(user, sess))
	}
}

// @Summary      Login
// @Description  Login with email and password and start the session
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body loginRequest true "Login input"
// @Success      201  {object}  signInResponse
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /auth/login [post]
func handleLogin(auth domain.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		user, sess, err := auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newSignInResponse(user, sess))
	}
}

// @Summary      Get Current User
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  userResponse
// @Failure      401  {object}  map[string]string
// @Router       /auth/me [get]
func handleMe(auth domain.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := auth.CurrentUser(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(user))
	}
}

// @Summary      Logout
// @Description  Logout from the backend and end the local session
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  map[string]string
// @Router       /auth/logout [post]
func handleLogout(auth domain.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := auth.Logout(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleChangePassword(auth domain.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req passwordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := auth.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func newSignInResponse(u *domain.User, s domain.Session) signInResponse {
	return signInResponse{
		AccessToken: s.Token,
		TokenType:   "bearer",
		User:        toUserResponse(u),
		Session:     newSessionResponse(s),
	}
}
