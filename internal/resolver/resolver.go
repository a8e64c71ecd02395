// Package resolver implements the Connection Resolver: a read-only view
// adapter that maps a logical (serverName, sessionID) pair to the correct
// live outbound connection, hiding the template key scheme (static vs.
// shareable-hash vs. per-client) from callers like the meta-tool façade
// and the inbound request dispatcher.
package resolver

import (
	"strings"

	"github.com/mcpfleet/gateway/internal/outbound"
	"github.com/mcpfleet/gateway/pkg/logging"
)

const logSubsystem = "ConnectionResolver"

// Outbounds is the subset of *outbound.Manager the Resolver depends on.
type Outbounds interface {
	Snapshot() map[string]*outbound.Connection
	GetByName(name, sessionID string) (*outbound.Connection, bool)
}

// HashTable answers "what rendered-hash did session render template
// name to", the per-session factory's sessionID -> {templateName ->
// hash} back-index. A nil HashTable is valid and simply means no
// templates are in play.
type HashTable interface {
	HashFor(sessionID, templateName string) (hash string, ok bool)
}

// Resolver adapts a Manager snapshot into session-scoped views.
type Resolver struct {
	outbounds Outbounds
	hashes    HashTable
}

// New constructs a Resolver over outbounds and the factory's hash table.
func New(outbounds Outbounds, hashes HashTable) *Resolver {
	return &Resolver{outbounds: outbounds, hashes: hashes}
}

// Resolve implements the strict resolution order:
//  1. a per-client template connection keyed name:sessionId, if present;
//  2. else, if the session's hash table maps name to a hash, the
//     shareable connection keyed name:hash;
//  3. else, the static connection keyed name.
func (r *Resolver) Resolve(serverName, sessionID string) (*outbound.Connection, bool) {
	conns := r.outbounds.Snapshot()

	if sessionID != "" {
		if conn, ok := conns[outbound.TemplateSessionKey(serverName, sessionID).String()]; ok {
			return conn, true
		}
		if r.hashes != nil {
			if hash, ok := r.hashes.HashFor(sessionID, serverName); ok {
				if conn, ok := conns[outbound.TemplateHashKey(serverName, hash).String()]; ok {
					return conn, true
				}
			}
		}
	}

	if conn, ok := conns[outbound.StaticKey(serverName).String()]; ok {
		return conn, true
	}

	return nil, false
}

// FilterForSession produces the session's visible outbounds: every static
// entry, every name:sessionId entry whose suffix equals sessionID, and
// every name:hash entry the session's hash table actually maps to. A key
// containing more than one colon is an invariant violation (the
// connection-key format forbids it); it is logged and skipped rather than
// surfaced.
func (r *Resolver) FilterForSession(sessionID string) map[string]*outbound.Connection {
	out := make(map[string]*outbound.Connection)

	for key, conn := range r.outbounds.Snapshot() {
		if strings.Count(key, ":") > 1 {
			logging.Warn(logSubsystem, "connection key %q has more than one ':' — invariant violation, skipping", key)
			continue
		}

		name, suffix, hasSuffix := strings.Cut(key, ":")
		if !hasSuffix {
			out[key] = conn
			continue
		}

		if suffix == sessionID {
			out[key] = conn
			continue
		}

		if r.hashes != nil {
			if hash, ok := r.hashes.HashFor(sessionID, name); ok && hash == suffix {
				out[key] = conn
			}
		}
	}

	return out
}
