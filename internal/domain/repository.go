package domain

import (
	"context"
	"time"
)

// StoredSession is the persisted form of a Session. The token is sealed.
type StoredSession struct {
	UserID      string
	SealedToken string
	ExpiresAt   time.Time
}

// SessionRepository persists the signed-in session so it can be restored.
type SessionRepository interface {
	Save(ctx context.Context, s StoredSession) error
	// Load returns ErrNoSession when nothing is stored.
	Load(ctx context.Context) (StoredSession, error)
	Delete(ctx context.Context) error
}

// SettingsRepository persists display settings.
type SettingsRepository interface {
	// Get returns ErrNotFound when nothing was saved yet.
	Get(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

// RegisterInput is the payload for account registration.
type RegisterInput struct {
	Name        string
	Username    string
	Email       string
	Password    string
	PhoneNumber string
}

// User is the account record returned by the auth collaborator.
type User struct {
	ID          string
	Name        string
	Username    string
	Email       string
	PhoneNumber string
	Avatar      *string
	LastSeen    time.Time
}

// AuthService is the external session/auth collaborator. Implementations
// return an error wrapping ErrUnauthorized when the session is rejected.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) error
	VerifyOTP(ctx context.Context, email, otp string) (*User, Session, error)
	Login(ctx context.Context, email, password string) (*User, Session, error)
	CurrentUser(ctx context.Context) (*User, error)
	Logout(ctx context.Context) error
	ChangePassword(ctx context.Context, current, next string) error
}

// ProfileService is the external profile collaborator. The realtime core never calls it.
type ProfileService interface {
	UpdateProfile(ctx context.Context, name, username, phoneNumber string) (*User, error)
	UploadAvatar(ctx context.Context, filename string, data []byte) (*User, error)
	DeleteAvatar(ctx context.Context) (*User, error)
}
