package account

import "context"

// RequestLimiter caps how often requests can be made, independently of the
// per-token cooldown. key is the ID of the account the request is made for.
type RequestLimiter interface {
	Allow(ctx context.Context, kind FlowKind, key string) (bool, error)
}
