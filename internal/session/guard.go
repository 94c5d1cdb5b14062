package session

import (
	"context"
	"errors"
	"fmt"

	"merrygit_go/internal/domain"
)

// Lifecycle is the part of Engine the Guard drives.
type Lifecycle interface {
	Start(ctx context.Context, sess domain.Session) (domain.Session, error)
	Logout(ctx context.Context) error
	ForceLogout(reason string)
}

// Guard wraps the auth collaborator. A successful login or OTP check starts
// the session and logout ends it. ErrUnauthorized from an authenticated call
// forces a logout; from the sign-in calls it only means bad credentials.
type Guard struct {
	inner  domain.AuthService
	engine Lifecycle
}

func NewGuard(inner domain.AuthService, engine Lifecycle) *Guard {
	return &Guard{inner: inner, engine: engine}
}

var _ domain.AuthService = (*Guard)(nil)

func (g *Guard) Register(ctx context.Context, in domain.RegisterInput) error {
	return g.inner.Register(ctx, in)
}

func (g *Guard) VerifyOTP(ctx context.Context, email, otp string) (*domain.User, domain.Session, error) {
	u, sess, err := g.inner.VerifyOTP(ctx, email, otp)
	return g.signIn(ctx, u, sess, err)
}

func (g *Guard) Login(ctx context.Context, email, password string) (*domain.User, domain.Session, error) {
	u, sess, err := g.inner.Login(ctx, email, password)
	return g.signIn(ctx, u, sess, err)
}

func (g *Guard) CurrentUser(ctx context.Context) (*domain.User, error) {
	u, err := g.inner.CurrentUser(ctx)
	return u, g.check(err)
}

// Logout ends the local session even when the collaborator call fails.
func (g *Guard) Logout(ctx context.Context) error {
	err := g.inner.Logout(ctx)
	if lerr := g.engine.Logout(ctx); lerr != nil && err == nil {
		err = lerr
	}
	return g.check(err)
}

func (g *Guard) ChangePassword(ctx context.Context, current, next string) error {
	return g.check(g.inner.ChangePassword(ctx, current, next))
}

func (g *Guard) signIn(ctx context.Context, u *domain.User, sess domain.Session, err error) (*domain.User, domain.Session, error) {
	if err != nil {
		return nil, domain.Session{}, err
	}
	started, err := g.engine.Start(ctx, sess)
	if err != nil {
		return nil, domain.Session{}, fmt.Errorf("start session: %w", err)
	}
	return u, started, nil
}

func (g *Guard) check(err error) error {
	if errors.Is(err, domain.ErrUnauthorized) {
		g.engine.ForceLogout("auth collaborator rejected the session")
	}
	return err
}
