// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter registers the SafeVault HTTP routes and middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)

	r.Get("/admin", h.admin)
	r.Get("/admin/users", h.adminUsers)

	return r
}
