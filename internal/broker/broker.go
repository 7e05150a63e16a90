// Package broker is the write and read path of the memory store. It
// routes events to scope partitions, scores and redacts them on the way
// in, and serves filtered, budgeted, and semantic searches on the way
// out.
package broker

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/rcliao/membroker/internal/model"
	"github.com/rcliao/membroker/internal/ndjson"
	"github.com/rcliao/membroker/internal/policy"
	"github.com/rcliao/membroker/internal/redact"
	"github.com/rcliao/membroker/internal/scoring"
	"github.com/rcliao/membroker/internal/semantic"
)

// Options configure a Broker. BaseDir is the only required field.
type Options struct {
	// BaseDir holds the session and global partitions plus policies.
	BaseDir string

	// ProjectDir holds the project partition. Empty means project
	// memories land under BaseDir.
	ProjectDir string

	// SessionID scopes session writes and searches. Empty generates a
	// fresh one.
	SessionID string

	// Semantic is the optional similarity index. Nil disables it.
	Semantic semantic.Index

	// SemanticTimeout bounds each best-effort index or query call.
	SemanticTimeout time.Duration

	// Policies overrides the policy manager. Nil loads one from
	// BaseDir/policies.
	Policies *policy.Manager

	Logger *log.Logger
}

// Broker coordinates everything: scoring, redaction, partition files,
// the policy manager, and the optional semantic index.
type Broker struct {
	baseDir    string
	projectDir string
	sessionID  string

	semantic   semantic.Index
	semTimeout time.Duration

	policies *policy.Manager
	engine   *scoring.Engine
	cache    *ristretto.Cache
	logger   *log.Logger
}

// New builds a broker, filling in defaults for anything unset.
func New(opts Options) (*Broker, error) {
	if opts.BaseDir == "" {
		return nil, fmt.Errorf("broker: BaseDir is required")
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.SemanticTimeout <= 0 {
		opts.SemanticTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Policies == nil {
		m, err := policy.NewManager(filepath.Join(opts.BaseDir, "policies"))
		if err != nil {
			return nil, err
		}
		opts.Policies = m
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     16 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("broker: event cache: %w", err)
	}

	return &Broker{
		baseDir:    opts.BaseDir,
		projectDir: opts.ProjectDir,
		sessionID:  opts.SessionID,
		semantic:   opts.Semantic,
		semTimeout: opts.SemanticTimeout,
		policies:   opts.Policies,
		engine:     opts.Policies.Engine(),
		cache:      cache,
		logger:     opts.Logger,
	}, nil
}

// SessionID returns the session this broker writes under.
func (b *Broker) SessionID() string { return b.sessionID }

// Policies exposes the policy manager for CLI commands.
func (b *Broker) Policies() *policy.Manager { return b.policies }

// sessionFile returns the partition path for the given session id.
func (b *Broker) sessionFile(sessionID string) string {
	return filepath.Join(b.baseDir, "sessions", "session-"+sessionID+".ndjson")
}

// globalFile holds user, agent, and public memories.
func (b *Broker) globalFile() string {
	return filepath.Join(b.baseDir, "global.ndjson")
}

// projectFile holds project memories, next to the project when a
// project dir is configured.
func (b *Broker) projectFile() string {
	if b.projectDir != "" {
		return filepath.Join(b.projectDir, "project.ndjson")
	}
	return filepath.Join(b.baseDir, "project.ndjson")
}

// storagePath maps a scope to its partition file.
func (b *Broker) storagePath(scope model.Scope) string {
	switch scope {
	case model.ScopeSession:
		return b.sessionFile(b.sessionID)
	case model.ScopeProject:
		return b.projectFile()
	default: // user, agent, public share the global partition
		return b.globalFile()
	}
}

// Write validates, redacts, scores, and persists an event, then feeds
// the semantic index best-effort. The event is mutated in place (id,
// timestamp, redacted content, importance metadata).
func (b *Broker) Write(ctx context.Context, e *model.MemoryEvent, sctx *scoring.Context) error {
	if err := e.Validate(); err != nil {
		return err
	}
	e.Stamp()

	e.Content = redact.String(e.Content)
	e.Context = redact.String(e.Context)
	e.Metadata = redact.Map(e.Metadata)

	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	if _, ok := e.Metadata["importance_score"]; !ok {
		e.Metadata["importance_score"] = b.engine.Importance(e, sctx)
	}
	if _, ok := e.Metadata["session_id"]; !ok {
		e.Metadata["session_id"] = b.sessionID
	}

	if err := ndjson.Append(b.storagePath(e.Scope), e); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	b.cache.Set(e.ID, e, 1)
	b.indexSemantic(ctx, e)
	return nil
}

// indexSemantic feeds the similarity index. Failures are logged and
// swallowed: the durable write already succeeded.
func (b *Broker) indexSemantic(ctx context.Context, e *model.MemoryEvent) {
	if b.semantic == nil {
		return
	}
	ictx, cancel := context.WithTimeout(ctx, b.semTimeout)
	defer cancel()
	if err := b.semantic.Index(ictx, e); err != nil {
		b.logger.Warn("semantic index failed", "event", e.ID, "err", err)
	}
}

// AddParams describe a new memory in caller terms. Zero values pick
// sensible defaults: type preference, scope from the type, agent
// claude, confidence 1.0.
type AddParams struct {
	Content    string
	Type       model.Type
	Scope      model.Scope
	Agent      model.Agent
	Context    string
	Confidence *float64
	TTLDays    *int
	Tags       []string
	Metadata   map[string]any
}

// Add builds an event from params and writes it. Returns the stored
// event, with id and scores filled in.
func (b *Broker) Add(ctx context.Context, p AddParams, sctx *scoring.Context) (*model.MemoryEvent, error) {
	if p.Type == "" {
		p.Type = model.TypePreference
	}
	if p.Scope == "" {
		p.Scope = model.DefaultScope(p.Type)
	}
	if p.Agent == "" {
		p.Agent = model.AgentClaude
	}
	confidence := 1.0
	if p.Confidence != nil {
		confidence = *p.Confidence
	}

	e := &model.MemoryEvent{
		Content:     p.Content,
		MemoryType:  p.Type,
		Scope:       p.Scope,
		SourceAgent: p.Agent,
		Context:     p.Context,
		Confidence:  confidence,
		TTLDays:     p.TTLDays,
		Tags:        p.Tags,
		Metadata:    p.Metadata,
	}
	if err := b.Write(ctx, e, sctx); err != nil {
		return nil, err
	}
	return e, nil
}

// AddToolResult records a tool invocation outcome. Failures become
// error-type events so they surface on later recalls of the same tool.
func (b *Broker) AddToolResult(ctx context.Context, tool string, success bool, output string, sctx *scoring.Context) (*model.MemoryEvent, error) {
	t := model.TypeObservation
	outcome := scoring.OutcomeSuccess
	if !success {
		t = model.TypeError
		outcome = scoring.OutcomeFailure
	}
	if sctx == nil {
		sctx = scoring.NewContext()
	}
	sctx.ToolName = tool
	sctx.ToolSuccess = success

	return b.Add(ctx, AddParams{
		Content: output,
		Type:    t,
		Scope:   model.ScopeSession,
		Metadata: map[string]any{
			"tool_name": tool,
			"outcome":   outcome,
		},
	}, sctx)
}

// getByID resolves an event id, preferring the cache and falling back
// to scanning the partitions this broker can see.
func (b *Broker) getByID(id string) *model.MemoryEvent {
	if v, ok := b.cache.Get(id); ok {
		if e, ok := v.(*model.MemoryEvent); ok {
			return e
		}
	}
	for _, path := range b.visibleFiles() {
		for _, e := range ndjson.Load(path) {
			if e.ID == id {
				b.cache.Set(id, e, 1)
				return e
			}
		}
	}
	return nil
}

// visibleFiles lists the partitions an unfiltered search may read:
// the current session, the project, and the global file. Other
// sessions stay invisible.
func (b *Broker) visibleFiles() []string {
	return []string{
		b.sessionFile(b.sessionID),
		b.projectFile(),
		b.globalFile(),
	}
}
