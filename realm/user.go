package realm

import "github.com/jrsteele09/go-auth-core/auth"

// User is a principal authenticated by a realm.
type User struct {
	*auth.BaseUser
	username string
}

func newUser(p *Provider, username string) (*User, error) {
	u := &User{username: username}
	u.BaseUser = auth.NewBaseUser(Kind, map[string]any{UsernameField: username}, u)
	if err := u.SetAuthProvider(p); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) Username() string {
	return u.username
}
