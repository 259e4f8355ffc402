package auth

import (
	"context"
	"errors"
	"fmt"
)

const ChainKind = "chain"

// Chain authenticates against each provider in turn and returns the user of
// the first one that accepts the credentials. A failure that is not an
// authentication failure, such as a store outage, stops the chain.
type Chain struct {
	providers []Provider
}

var _ Provider = (*Chain)(nil)

func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Append adds a provider to the end of the chain. Not safe once the chain is in use.
func (c *Chain) Append(provider Provider) *Chain {
	c.providers = append(c.providers, provider)
	return c
}

func (c *Chain) Kind() string {
	return ChainKind
}

func (c *Chain) Authenticate(ctx context.Context, credentials Credentials) (User, error) {
	if len(c.providers) == 0 {
		return nil, NewAuthenticationError(ReasonInvalidCredentials, errors.New("no providers in chain"), false)
	}

	var lastErr error
	for _, p := range c.providers {
		user, err := p.Authenticate(ctx, credentials)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrAuthentication) || errors.Is(err, ErrBackingStore) {
			return nil, fmt.Errorf("[Chain.Authenticate] provider %q: %w", p.Kind(), err)
		}
		lastErr = err
	}
	return nil, lastErr
}
