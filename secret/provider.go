package secret

import "context"

// Provider resolves a secret reference — e.g. the "vault" in
// "secretref:vault:marketops/cache/redis-dsn" names the Provider and
// "marketops/cache/redis-dsn" is the ref handed to Resolve.
//
// Implementations must be safe for concurrent use (a Resolver may
// shared one Provider across every config.Load call a long-running
// process makes) and must never log the resolved value.
type Provider interface {
	// Name is the provider token a "secretref:<Name>:<ref>" string
	// matches against.
	Name() string
	// Resolve returns the secret value addressed by ref, or an error
	// if it cannot be found or the provider is unreachable.
	Resolve(ctx context.Context, ref string) (string, error)
	// Close releases any connection the provider holds (e.g. a Vault
	// client), once the owning Resolver is done with it.
	Close() error
}
