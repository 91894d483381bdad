// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
Package middleware provides HTTP middleware for the status server.

Key Components:

  - RequestID: assigns or propagates X-Request-ID and stores a request-scoped
    zerolog logger in the context
  - AccessLog: one structured log line per request

Both follow the func(http.Handler) http.Handler shape so they plug straight
into a chi router:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)

Handlers reach the tagged logger through logging.Ctx(r.Context()).
*/
package middleware
