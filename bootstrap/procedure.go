/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/tomoncle/loginsvc/database"
)

type State int

const (
	NotStarted State = iota
	DatabaseEnsured
	SchemaMaterialized
	Verified
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case DatabaseEnsured:
		return "database ensured"
	case SchemaMaterialized:
		return "schema materialized"
	case Verified:
		return "verified"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Provisioner creates the target database when it is missing.
type Provisioner interface {
	EnsureDatabase(ctx context.Context, desc database.Descriptor) error
}

// Materializer creates every registered table that does not exist yet.
type Materializer interface {
	MaterializeSchema(ctx context.Context, reg *database.SchemaRegistry) error
}

// Prober runs a trivial statement through a fresh session.
type Prober interface {
	Probe(ctx context.Context) error
}

// StepError names the step that failed. Step is the state the procedure was
// trying to reach.
type StepError struct {
	Step State
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("bootstrap failed before %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

type Deps struct {
	Descriptor  database.Descriptor
	Provisioner Provisioner
	Schema      Materializer
	Prober      Prober
	Registry    *database.SchemaRegistry
	// Out receives the step-by-step progress. Nil discards it.
	Out    io.Writer
	Logger database.Logger
}

// Procedure is not safe for concurrent use.
type Procedure struct {
	desc        database.Descriptor
	provisioner Provisioner
	schema      Materializer
	prober      Prober
	registry    *database.SchemaRegistry
	out         io.Writer
	logger      database.Logger

	state   State
	failure error
}

func New(deps Deps) (*Procedure, error) {
	if deps.Provisioner == nil {
		return nil, errors.New("provisioner is required")
	}
	if deps.Schema == nil {
		return nil, errors.New("schema materializer is required")
	}
	if deps.Prober == nil {
		return nil, errors.New("prober is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("schema registry is required")
	}
	out := deps.Out
	if out == nil {
		out = io.Discard
	}
	logger := deps.Logger
	if logger == nil {
		logger = database.NopLogger()
	}
	return &Procedure{
		desc:        deps.Descriptor,
		provisioner: deps.Provisioner,
		schema:      deps.Schema,
		prober:      deps.Prober,
		registry:    deps.Registry,
		out:         out,
		logger:      logger,
	}, nil
}

// ForEngine wires the procedure to a real engine and a provisioner sharing
// the engine's logger.
func ForEngine(engine *database.Engine, reg *database.SchemaRegistry, out io.Writer) (*Procedure, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	return New(Deps{
		Descriptor:  engine.Descriptor(),
		Provisioner: database.NewProvisioner(engine.Logger()),
		Schema:      engine,
		Prober:      engine,
		Registry:    reg,
		Out:         out,
		Logger:      engine.Logger(),
	})
}

func (p *Procedure) State() State { return p.state }

// Failure is the error that moved the procedure to Failed, or nil.
func (p *Procedure) Failure() error { return p.failure }

type step struct {
	target  State
	title   string
	success string
	failure string
	run     func(ctx context.Context) error
}

// Run executes the steps in order and stops at the first failure. A
// successful run can be repeated; it changes nothing the second time.
func (p *Procedure) Run(ctx context.Context) error {
	p.state, p.failure = NotStarted, nil
	p.banner()

	steps := []step{
		{
			target:  DatabaseEnsured,
			title:   "Creating database",
			success: fmt.Sprintf("Database '%s' created or already exists", p.desc.Database),
			failure: "Error creating database",
			run:     func(ctx context.Context) error { return p.provisioner.EnsureDatabase(ctx, p.desc) },
		},
		{
			target:  SchemaMaterialized,
			title:   "Creating tables",
			success: fmt.Sprintf("Database tables created successfully (%s)", strings.Join(p.registry.Tables(), ", ")),
			failure: "Error creating tables",
			run:     func(ctx context.Context) error { return p.schema.MaterializeSchema(ctx, p.registry) },
		},
		{
			target:  Verified,
			title:   "Verifying connection",
			success: "Database connection verified",
			failure: "Error verifying connection",
			run:     p.prober.Probe,
		},
	}

	for i, s := range steps {
		fmt.Fprintf(p.out, "Step %d: %s...\n", i+1, s.title)
		if err := s.run(ctx); err != nil {
			return p.fail(s, err)
		}
		p.state = s.target
		p.logger.Info("Bootstrap step completed", "state", s.target.String())
		color.New(color.FgGreen).Fprintf(p.out, "✓ %s\n\n", s.success)
	}

	p.state = Done
	p.rule()
	color.New(color.FgGreen, color.Bold).Fprintln(p.out, "✓ Database initialization completed successfully!")
	p.rule()
	return nil
}

func (p *Procedure) fail(s step, err error) error {
	p.state, p.failure = Failed, &StepError{Step: s.target, Err: err}
	p.logger.Error("Bootstrap step failed", "step", s.target.String(), "error", err)

	red := color.New(color.FgRed)
	red.Fprintf(p.out, "✗ %s: %v\n\n", s.failure, err)
	p.rule()
	red.Add(color.Bold).Fprintln(p.out, "✗ Database initialization failed!")
	p.rule()
	fmt.Fprintf(p.out, "Error: %v\n", err)
	fmt.Fprintf(p.out, "Hint: %s\n", database.Diagnose(err))
	return p.failure
}

func (p *Procedure) banner() {
	p.rule()
	fmt.Fprintln(p.out, "Database Initialization")
	p.rule()
	fmt.Fprintf(p.out, "Driver: %s\n", p.desc.Driver)
	if p.desc.Driver != database.TypeSQLite {
		fmt.Fprintf(p.out, "Host: %s\n", p.desc.Host)
		fmt.Fprintf(p.out, "Port: %d\n", p.desc.Port)
		fmt.Fprintf(p.out, "User: %s\n", p.desc.Username)
	}
	fmt.Fprintf(p.out, "Database: %s\n", p.desc.Database)
	p.rule()
	fmt.Fprintln(p.out)
}

func (p *Procedure) rule() {
	fmt.Fprintln(p.out, strings.Repeat("=", 50))
}
