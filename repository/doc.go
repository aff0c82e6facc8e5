// Package repository provides a generic repository built on Bun for CRUD,
// filtered lookups, pagination and upserts. Statements run on a Source, which
// is normally the request's database session.
package repository
