package submsrvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrClaimed is returned when another submit holds or already committed
// the identity.
var ErrClaimed = errors.New("identity already claimed")

// Claims serializes submits of the same identity. A claim is either
// committed once the request file is written or released on failure.
type Claims interface {
	Claim(ctx context.Context, key string) error
	Commit(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// InMemClaims guards identities within one process. Committed keys are
// forgotten: from then on the request store and queue cache answer.
type InMemClaims struct {
	held *xsync.MapOf[string, struct{}]
}

func NewInMemClaims() *InMemClaims {
	return &InMemClaims{held: xsync.NewMapOf[string, struct{}]()}
}

func (c *InMemClaims) Claim(ctx context.Context, key string) error {
	if _, loaded := c.held.LoadOrStore(key, struct{}{}); loaded {
		return fmt.Errorf("%s: %w", key, ErrClaimed)
	}
	return nil
}

func (c *InMemClaims) Commit(ctx context.Context, key string) error {
	c.held.Delete(key)
	return nil
}

func (c *InMemClaims) Release(ctx context.Context, key string) error {
	c.held.Delete(key)
	return nil
}

func (c *InMemClaims) Held() int {
	return c.held.Size()
}

type chainClaims []Claims

// ChainClaims acquires claims in order and releases the acquired ones
// when a later claim fails.
func ChainClaims(claims ...Claims) Claims {
	return chainClaims(claims)
}

func (cc chainClaims) Claim(ctx context.Context, key string) error {
	for i, c := range cc {
		if err := c.Claim(ctx, key); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = cc[j].Release(ctx, key)
			}
			return err
		}
	}
	return nil
}

func (cc chainClaims) Commit(ctx context.Context, key string) error {
	var result *multierror.Error
	for i := len(cc) - 1; i >= 0; i-- {
		result = multierror.Append(result, cc[i].Commit(ctx, key))
	}
	return result.ErrorOrNil()
}

func (cc chainClaims) Release(ctx context.Context, key string) error {
	var result *multierror.Error
	for i := len(cc) - 1; i >= 0; i-- {
		result = multierror.Append(result, cc[i].Release(ctx, key))
	}
	return result.ErrorOrNil()
}
