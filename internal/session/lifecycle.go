package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcpfleet/gateway/internal/config"
	"github.com/mcpfleet/gateway/internal/errs"
	"github.com/mcpfleet/gateway/internal/tagquery"
	"github.com/mcpfleet/gateway/pkg/logging"
)

// OpenSession attaches a new inbound session: it resolves opts' tag filter
// into an Expr, allocates a fresh session id, attaches every configured
// template (plus opts.CustomTemplate, if supplied) against opts.Context,
// and registers the result so dispatch and the tool filter can find it.
func (s *Service) OpenSession(ctx context.Context, tr Transport, opts OpenOptions) (*Session, error) {
	expr, err := s.resolveFilter(opts)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		ID:               newSessionID(),
		Transport:        tr,
		Expr:             expr,
		FilterMode:       opts.FilterMode,
		PresetName:       opts.PresetName,
		EnablePagination: opts.EnablePagination || s.snapshot.Active().Features.Pagination,
		Context:          opts.Context,
		CreatedAt:        now,
		LastSeen:         now,
	}

	s.attachTemplates(ctx, sess, opts.CustomTemplate)
	s.registry.Put(sess)
	logging.Debug(logSubsystem, "opened session %s (transport=%s filterMode=%s)", sess.ID, sess.Transport, sess.FilterMode)
	return sess, nil
}

// attachTemplates renders the snapshot's mcpTemplates plus, if non-empty,
// opts.CustomTemplate (a JSON-encoded config.MCPServerParams the caller
// supplies ad hoc at open time, not present in the on-disk document) and
// hands them to the template factory to materialize or join.
func (s *Service) attachTemplates(ctx context.Context, sess *Session, customTemplate string) {
	snap := s.snapshot.Active()
	templates := snap.MCPTemplates
	if customTemplate != "" {
		var params config.MCPServerParams
		if err := json.Unmarshal([]byte(customTemplate), &params); err != nil {
			logging.Warn(logSubsystem, "session %s: customTemplate is not a valid server definition: %v", sess.ID, err)
		} else {
			merged := make(map[string]config.MCPServerParams, len(templates)+1)
			for k, v := range templates {
				merged[k] = v
			}
			merged["custom"] = params
			templates = merged
		}
	}
	s.templates.Attach(ctx, sess.ID, templates, sess.Context)
}

// resolveFilter converts opts' tagFilterMode-specific parameters into the
// single Expr the aggregator and resolver actually evaluate, narrowed by
// opts.AuthExpr (the bearer token's granted tags) if present.
func (s *Service) resolveFilter(opts OpenOptions) (tagquery.Expr, error) {
	base, err := resolveBaseFilter(s, opts)
	if err != nil {
		return nil, err
	}
	if opts.AuthExpr == nil {
		return base, nil
	}
	if _, isAny := base.(tagquery.Any); isAny {
		return opts.AuthExpr, nil
	}
	return tagquery.And{opts.AuthExpr, base}, nil
}

func resolveBaseFilter(s *Service, opts OpenOptions) (tagquery.Expr, error) {
	switch opts.FilterMode {
	case FilterModeNone, "":
		return tagquery.Any{}, nil

	case FilterModePreset:
		if s.presets == nil {
			return nil, fmt.Errorf("no preset store configured")
		}
		preset, ok, err := s.presets.Get(opts.PresetName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &errs.InvalidTagExpressionError{Expression: opts.PresetName, Msg: fmt.Sprintf("preset %q not found", opts.PresetName)}
		}
		return tagquery.PresetToExpression(preset)

	case FilterModeAdvanced:
		return tagquery.ParseAdvanced(opts.TagExpression)

	case FilterModeSimple:
		if len(opts.Tags) == 0 {
			return tagquery.Any{}, nil
		}
		children := make(tagquery.Or, 0, len(opts.Tags))
		for _, t := range opts.Tags {
			if !tagquery.ValidTagName(t) {
				return nil, &errs.InvalidTagExpressionError{Expression: t, Msg: "invalid tag name: " + t}
			}
			children = append(children, tagquery.Tag(t))
		}
		return children, nil

	default:
		return nil, fmt.Errorf("unknown tag filter mode %q", opts.FilterMode)
	}
}

// Refine re-resolves an already-open session's tag filter from opts,
// called from the transport layer's OnRegisterSession hook once the
// inbound request's query parameters are available — streamableHTTPServer's
// SessionIdManager.Generate() callback that originally opened the session
// runs before any request context exists, so filtering starts permissive
// (tagquery.Any) and is narrowed here, before the first tools/list a
// client could observe.
func (s *Service) Refine(sessionID string, opts OpenOptions) error {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return errs.ErrSessionNotFound
	}

	expr, err := s.resolveFilter(opts)
	if err != nil {
		return err
	}

	sess.Expr = expr
	sess.FilterMode = opts.FilterMode
	sess.PresetName = opts.PresetName
	sess.EnablePagination = opts.EnablePagination
	s.registry.Put(sess)
	return nil
}

// CloseSession detaches every template
// this session attached (tearing down per-client outbounds, decrementing
// shareable refcounts) and forgets the session. drain is currently
// best-effort only: in-flight calls are not awaited before detaching,
// since the proxy has no per-call cancellation handle to wait on.
func (s *Service) CloseSession(sessionID string, drain bool) {
	_ = drain
	s.templates.Detach(sessionID)
	s.registry.Delete(sessionID)
	logging.Debug(logSubsystem, "closed session %s", sessionID)
}

// Session returns the in-memory session for id without touching
// persisted storage, for callers (the streamable-HTTP session id
// manager) that need to distinguish "known" from "needs restoring".
func (s *Service) Session(id string) (*Session, bool) {
	return s.registry.Get(id)
}

// SweepExpired evicts sessions untouched for longer than the registry's
// TTL, for the background sweeper started alongside the storage
// repositories' own sweep — the schema cache, filter cache, and session
// TTLs all share the same periodic-sweep ticker.
func (s *Service) SweepExpired() int {
	return s.registry.Sweep()
}

// RestoreSession recovers a session on a streamable-HTTP GET against a
// previously-known mcp-session-id. The
// persisted session id, tagExpression, context, and presetName are
// retained unchanged; templates are re-attached since the outbound
// manager does not itself persist across a process restart.
func (s *Service) RestoreSession(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.registry.Restore(sessionID)
	if err != nil {
		return nil, errs.ErrSessionNotFound
	}

	s.attachTemplates(ctx, sess, "")
	s.registry.Touch(sess.ID)
	logging.Debug(logSubsystem, "restored session %s", sess.ID)
	return sess, nil
}

// DeleteSession is explicit client-initiated termination, identical in
// effect to CloseSession with draining skipped.
func (s *Service) DeleteSession(sessionID string) {
	s.CloseSession(sessionID, false)
}
