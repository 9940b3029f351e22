// Package applyai provides the public API for embedding the ApplyAI client.
// This is the stable API for external consumers.
package applyai

import (
	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/orchestrator"
	"github.com/tjfontaine/applyai-client/internal/runtime"
)

// App is the main entry point of the client.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// TailorInput is the resume-tailoring form.
type TailorInput = orchestrator.TailorInput

// Shared types
type (
	Identity        = domain.Identity
	Session         = domain.Session
	SubmissionState = domain.SubmissionState
	MessageLogEntry = domain.MessageLogEntry
)

// New creates a new App with the given options.
// Example:
//
//	app, err := applyai.New(
//	    applyai.WithFileConfig("applyai.yaml"),
//	    applyai.WithSQLiteCache("./data/identity.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig = runtime.WithFileConfig
	WithConfig     = runtime.WithConfig

	// Identity
	WithSQLiteCache     = runtime.WithSQLiteCache
	WithMemoryCache     = runtime.WithMemoryCache
	WithIdentityCache   = runtime.WithIdentityCache
	WithIdentityGateway = runtime.WithIdentityGateway
	WithBrowserOpener   = runtime.WithBrowserOpener

	// Backend
	WithBackendURL = runtime.WithBackendURL
	WithBackend    = runtime.WithBackend

	// Advanced options
	WithLogger       = runtime.WithLogger
	WithTokenCounter = runtime.WithTokenCounter
	WithTraceWriter  = runtime.WithTraceWriter
)

// Errors
var (
	ErrSignInRequired = domain.ErrSignInRequired
	ErrSuperseded     = domain.ErrSuperseded
)
