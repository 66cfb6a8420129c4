// Package config provides centralized configuration management for the
// agentd runtime, covering the API server, run storage and queue drivers,
// reasoning provider credentials, chain endpoints, and orchestration
// budgets. Values omitted from the JSON file fall back to sane defaults.
package config
