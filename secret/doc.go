// Package secret resolves secret references embedded in configuration
// values loaded by the config package — today that means exactly one
// field, CacheConfig.StoreDSN, which addresses a non-memory cache
// store (a future redis/file backend) and may need a credential this
// process should never read from a plain env var.
//
// Two forms are supported:
//   - Strict environment expansion (see ExpandEnvStrict): "${VAR}" must
//     resolve or loading fails fast, rather than silently leaving the
//     literal "${VAR}" in a connection string.
//   - Secret references of the form "secretref:<provider>:<ref>",
//     resolved through a caller-supplied Provider (see Resolver) —
//     full value ("secretref:vault:marketops/cache/redis-dsn") or
//     inline within a larger string
//     ("redis://secretref:vault:marketops/cache/redis-dsn").
//
// This package has no opinion on where a Provider's secrets actually
// live; config.Load accepts zero or more as constructor arguments and
// a host wires in whichever backend it runs (Vault, AWS Secrets
// Manager, a flat file) by implementing Provider.
package secret
