package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-core/auth"
)

// User is a principal backed by a verified JWT. Its principal is the
// decoded claim set.
type User struct {
	*auth.BaseUser
	raw string
}

func newUser(p *Provider, raw string, claims jwt.MapClaims) (*User, error) {
	u := &User{raw: raw}
	u.BaseUser = auth.NewBaseUser(Kind, claims, u)
	if err := u.SetAuthProvider(p); err != nil {
		return nil, err
	}
	return u, nil
}

// Token returns the encoded JWT.
func (u *User) Token() string {
	return u.raw
}

func (u *User) Subject() string {
	sub, _ := u.Principal()["sub"].(string)
	return sub
}

// ExpiresAt returns the exp claim, or the zero time when absent.
func (u *User) ExpiresAt() time.Time {
	exp, err := jwt.MapClaims(u.Principal()).GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
