// Package server is the HTTP application shell: it materializes the schema on
// start, installs the middleware stack, serves the root and health endpoints
// and mounts the auth router under /auth with one database session per
// request.
package server
