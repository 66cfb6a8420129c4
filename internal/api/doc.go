// Package api exposes external interfaces for submitting runs, polling
// their status, and scraping operational metrics. It hosts the REST server
// used by operators and upstream services.
package api
