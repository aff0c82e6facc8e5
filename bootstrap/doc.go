// Package bootstrap runs the one-shot database initialization: make sure the
// database exists, create the registered tables, then prove that a pooled
// session can run a statement. Each step is a checkpoint; the first failure
// stops the run and is reported with an operator hint.
package bootstrap
