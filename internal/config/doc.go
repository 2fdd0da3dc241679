// Package config loads and watches the crashpost configuration file.
//
// Top-level types:
//   - Config{Client, Agent, Log} — full config tree parsed from YAML
//   - ClientConfig — dsn_env, environment, release, http_timeout,
//     rate_limit_cooldown, backoff_interval, ca_file, insecure_skip_verify
//   - AgentConfig — http_port, grpc_port, outcome_ttl, stream_interval, auth
//   - AuthConfig — mode (apikey|none), key_env, header; Key() resolves the
//     key from the environment
//   - LogConfig — level (debug|info|warn|error)
//
// Load(path) reads the YAML file, applies defaults (5s cooldown, 1s backoff
// poll, 10s HTTP timeout, ports 8080/50051), then validates required fields
// and enums. Secrets are never stored in the file: the DSN and API key are
// read from the environment variables the file names.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config.
package config
