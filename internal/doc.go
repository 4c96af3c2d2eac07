// Package internal contains the implementation packages of the brokerage
// site.
//
// # Package Organization
//
//   - pages: page catalogue, content YAML and the templ components for each page
//   - chunks: loaded-once cache of page chunks keyed by page id
//   - lazy: deferred rendering with a fallback while a chunk loads
//   - prefetch: hover and idle prefetch scheduling
//   - forms: insurance line definitions, field rules and sanitizing
//   - formstate: per-visitor form draft store with pluggable storage
//   - leads: persisted quote and contact submissions plus notification mail
//   - server: HTTP routes, middleware chain, rate limiting and live reload
//   - watcher: content directory watching with debouncing
//   - config, logging, errors, validation, version: ambient support
//
// # Request Flow
//
// A page request passes the middleware chain in server, resolves its page id
// in pages, and renders through lazy, which asks chunks for the page body.
// Once the page is served, prefetch warms the chunks a visitor is likely to
// open next. Form drafts travel through formstate and finished submissions
// become leads.
package internal
