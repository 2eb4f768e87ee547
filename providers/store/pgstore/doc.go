// Package pgstore persists run records in PostgreSQL through pgx/v5.
//
// The main entry point is [New], which takes any [Querier] (typically a
// *pgxpool.Pool). Call [Store.EnsureSchema] during development to create the
// tables; production deployments should manage migrations with dedicated
// tooling.
package pgstore
