// Package auth enforces API key authentication on the agent's gRPC and HTTP
// endpoints. With mode "apikey" and a non-empty key, callers must present the
// key in the configured header (gRPC metadata or HTTP header); any other mode
// passes everything through.
package auth
