package submsrvc

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/guregu/dynamo/v2"
	"github.com/jonboulle/clockwork"
)

const (
	claimStatePending   = "pending"
	claimStateCommitted = "committed"
)

// ClaimRow is one submission identity in the claims table.
type ClaimRow struct {
	Identity  string `dynamo:"identity,hash"` // Primary key
	Owner     string `dynamo:"owner"`
	State     string `dynamo:"state"`
	ExpiresAt int64  `dynamo:"expires_at"`
	CreatedAt int64  `dynamo:"created_at"`
}

// DynamoClaims guards identities across processes with conditional puts.
// A pending claim is a lease: if its holder dies the lease expires and
// the identity can be claimed again. Committed claims never expire.
type DynamoClaims struct {
	table *dynamo.Table
	owner string
	lease time.Duration
	clock clockwork.Clock
}

func NewDynamoClaims(ddbClient *dynamodb.Client, tableName string, lease time.Duration) *DynamoClaims {
	db := dynamo.NewFromIface(ddbClient)
	table := db.Table(tableName)
	return &DynamoClaims{
		table: &table,
		owner: uuid.NewString(),
		lease: lease,
		clock: clockwork.NewRealClock(),
	}
}

func (c *DynamoClaims) Claim(ctx context.Context, key string) error {
	now := c.clock.Now()
	row := &ClaimRow{
		Identity:  key,
		Owner:     c.owner,
		State:     claimStatePending,
		ExpiresAt: now.Add(c.lease).Unix(),
		CreatedAt: now.Unix(),
	}
	err := c.table.Put(row).
		If("attribute_not_exists($) OR ($ = ? AND $ < ?)",
			"identity", "state", claimStatePending, "expires_at", now.Unix()).
		Run(ctx)
	if dynamo.IsCondCheckFailed(err) {
		return fmt.Errorf("%s: %w", key, ErrClaimed)
	}
	if err != nil {
		return fmt.Errorf("failed to claim %s: %w", key, err)
	}
	return nil
}

func (c *DynamoClaims) Commit(ctx context.Context, key string) error {
	err := c.table.Update("identity", key).
		Set("state", claimStateCommitted).
		If("$ = ?", "owner", c.owner).
		Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to commit claim %s: %w", key, err)
	}
	return nil
}

func (c *DynamoClaims) Release(ctx context.Context, key string) error {
	err := c.table.Delete("identity", key).
		If("$ = ? AND $ = ?", "owner", c.owner, "state", claimStatePending).
		Run(ctx)
	if err != nil && !dynamo.IsCondCheckFailed(err) {
		return fmt.Errorf("failed to release claim %s: %w", key, err)
	}
	return nil
}
