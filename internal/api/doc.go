// Package api exposes the REST surface for submitting trading intents,
// inspecting request state, and reading daemon status. It hosts the HTTP
// server together with its auth and metrics middleware.
package api
