// Package resource defines the clip data model shared across the daemon:
// answers, resource state, the kind registry, and the serve/cleanup
// lifecycle operations over them.
package resource
