// Package backend is the REST client for the chat backend's user API. It
// implements the auth and profile collaborators the session engine relies on.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/logger"
)

const (
	DefaultTokenCookie = "token"
	DefaultTimeout     = 10 * time.Second
)

type Options struct {
	BaseURL     string
	TokenCookie string
	Timeout     time.Duration
	// Token returns the token of the active session, or "" when signed out.
	Token  func() string
	Logger *zap.Logger
}

type Client struct {
	http        *resty.Client
	tokenCookie string
	token       func() string
	log         *zap.Logger
}

func New(opts Options) *Client {
	if opts.TokenCookie == "" {
		opts.TokenCookie = DefaultTokenCookie
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Token == nil {
		opts.Token = func() string { return "" }
	}
	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:        c,
		tokenCookie: opts.TokenCookie,
		token:       opts.Token,
		log:         logger.OrNop(opts.Logger).Named("backend"),
	}
}

var (
	_ domain.AuthService    = (*Client)(nil)
	_ domain.ProfileService = (*Client)(nil)
)

type userDTO struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber"`
	Avatar      *string   `json:"avatar"`
	LastSeen    time.Time `json:"lastSeen"`
}

func (u *userDTO) toDomain() *domain.User {
	if u == nil {
		return nil
	}
	return &domain.User{
		ID:          u.ID,
		Name:        u.Name,
		Username:    u.Username,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Avatar:      u.Avatar,
		LastSeen:    u.LastSeen,
	}
}

type userResponse struct {
	Message  string   `json:"message"`
	User     *userDTO `json:"user"`
	UserData *userDTO `json:"userData"`
}

func (r *userResponse) user() *domain.User {
	if r.User != nil {
		return r.User.toDomain()
	}
	return r.UserData.toDomain()
}

type errorResponse struct {
	Message string `json:"message"`
}

func (c *Client) Register(ctx context.Context, in domain.RegisterInput) error {
	body := map[string]string{
		"name":        in.Name,
		"username":    in.Username,
		"email":       in.Email,
		"password":    in.Password,
		"phoneNumber": in.PhoneNumber,
	}
	_, err := c.do(c.request(ctx, false).SetBody(body), http.MethodPost, "/user/register")
	return err
}

func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (*domain.User, domain.Session, error) {
	req := c.request(ctx, false).SetBody(map[string]string{"email": email, "otp": otp})
	return c.signIn(req, "/user/verify")
}

func (c *Client) Login(ctx context.Context, email, password string) (*domain.User, domain.Session, error) {
	req := c.request(ctx, false).SetBody(map[string]string{"email": email, "password": password})
	return c.signIn(req, "/user/login")
}

func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
	var out userResponse
	if _, err := c.do(c.request(ctx, true).SetResult(&out), http.MethodGet, "/user/me"); err != nil {
		return nil, err
	}
	return out.user(), nil
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(c.request(ctx, true), http.MethodGet, "/user/logout")
	return err
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{"currentPassword": current, "newPassword": next}
	_, err := c.do(c.request(ctx, true).SetBody(body), http.MethodPut, "/user/change-password")
	return err
}

func (c *Client) UpdateProfile(ctx context.Context, name, username, phoneNumber string) (*domain.User, error) {
	var out userResponse
	body := map[string]string{"name": name, "username": username, "phoneNumber": phoneNumber}
	if _, err := c.do(c.request(ctx, true).SetBody(body).SetResult(&out), http.MethodPut, "/user/update"); err != nil {
		return nil, err
	}
	return out.user(), nil
}

func (c *Client) UploadAvatar(ctx context.Context, filename string, data []byte) (*domain.User, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("avatar: %w", domain.ErrInvalidInput)
	}
	var out userResponse
	req := c.request(ctx, true).SetFileReader("avatar", filename, bytes.NewReader(data)).SetResult(&out)
	if _, err := c.do(req, http.MethodPut, "/user/update-avatar"); err != nil {
		return nil, err
	}
	return out.user(), nil
}

func (c *Client) DeleteAvatar(ctx context.Context) (*domain.User, error) {
	var out userResponse
	if _, err := c.do(c.request(ctx, true).SetResult(&out), http.MethodDelete, "/user/update-avatar"); err != nil {
		return nil, err
	}
	return out.user(), nil
}

// signIn runs a credential call and takes the session token from the cookie
// the backend sets on success.
func (c *Client) signIn(req *resty.Request, path string) (*domain.User, domain.Session, error) {
	var out userResponse
	resp, err := c.do(req.SetResult(&out), http.MethodPost, path)
	if err != nil {
		return nil, domain.Session{}, err
	}
	u := out.user()
	if u == nil {
		return nil, domain.Session{}, fmt.Errorf("%s: no user in response", path)
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == c.tokenCookie && ck.Value != "" {
			return u, domain.Session{UserID: u.ID, Token: ck.Value}, nil
		}
	}
	return nil, domain.Session{}, fmt.Errorf("%s: no %q cookie in response: %w", path, c.tokenCookie, domain.ErrNoSession)
}

func (c *Client) request(ctx context.Context, authed bool) *resty.Request {
	req := c.http.R().SetContext(ctx).SetError(&errorResponse{})
	if authed {
		if tok := c.token(); tok != "" {
			req.SetCookie(&http.Cookie{Name: c.tokenCookie, Value: tok})
		}
	}
	return req
}

func (c *Client) do(req *resty.Request, method, path string) (*resty.Response, error) {
	resp, err := req.Execute(method, path)
	if err != nil {
		c.log.Error("backend request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if !resp.IsError() {
		return resp, nil
	}

	msg := http.StatusText(resp.StatusCode())
	if e, ok := resp.Error().(*errorResponse); ok && e.Message != "" {
		msg = e.Message
	}
	c.log.Debug("backend rejected request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.String("message", msg),
	)
	return nil, fmt.Errorf("%s %s: %s: %w", method, path, msg, statusError(resp.StatusCode()))
}

func statusError(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return domain.ErrInvalidInput
	default:
		return fmt.Errorf("backend status %d", code)
	}
}
