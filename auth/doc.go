// Package auth implements user registration, password login with bearer
// access tokens and login history, mounted by the server under /auth.
package auth
