// Package auth holds the authentication and authorization primitives: password
// policy, credential hashing, signed tokens with a revocation set, fixed-window
// rate limiting and permission evaluation. Orchestration lives in the service
// package.
package auth
