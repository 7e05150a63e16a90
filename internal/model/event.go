// Package model defines the memory event record and its closed enumerations.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Scope determines which physical partition holds an event and who may
// read it without an explicit cross-scope filter.
type Scope string

const (
	ScopeSession Scope = "session" // current session only, temporary
	ScopeProject Scope = "project" // project-specific, persistent
	ScopeUser    Scope = "user"    // user-wide, persistent
	ScopeAgent   Scope = "agent"   // specific agent only
	ScopePublic  Scope = "public"  // shared across all agents
)

// Scopes lists all valid scopes in display order.
var Scopes = []Scope{ScopeSession, ScopeProject, ScopeUser, ScopeAgent, ScopePublic}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeSession, ScopeProject, ScopeUser, ScopeAgent, ScopePublic:
		return true
	}
	return false
}

// Type classifies a memory event.
type Type string

const (
	TypeObservation Type = "observation" // factual observation
	TypeDecision    Type = "decision"    // design/implementation decision
	TypePlan        Type = "plan"        // future plan or intent
	TypeArtifact    Type = "artifact"    // code, file, or output reference
	TypePreference  Type = "preference"  // user preference
	TypeWorkflow    Type = "workflow"    // workflow pattern
	TypeError       Type = "error"       // error pattern and solution
	TypeResearch    Type = "research"    // research finding
)

// Types lists all valid memory types.
var Types = []Type{
	TypeObservation, TypeDecision, TypePlan, TypeArtifact,
	TypePreference, TypeWorkflow, TypeError, TypeResearch,
}

// Valid reports whether t is a known memory type.
func (t Type) Valid() bool {
	switch t {
	case TypeObservation, TypeDecision, TypePlan, TypeArtifact,
		TypePreference, TypeWorkflow, TypeError, TypeResearch:
		return true
	}
	return false
}

// Agent identifies the producing agent.
type Agent string

const (
	AgentClaude  Agent = "claude"
	AgentCodex   Agent = "codex"
	AgentGemini  Agent = "gemini"
	AgentCopilot Agent = "copilot"
	AgentSystem  Agent = "system" // system-generated memories
)

// Agents lists the known agent identifiers.
var Agents = []Agent{AgentClaude, AgentCodex, AgentGemini, AgentCopilot, AgentSystem}

// Valid reports whether a is a known agent.
func (a Agent) Valid() bool {
	switch a {
	case AgentClaude, AgentCodex, AgentGemini, AgentCopilot, AgentSystem:
		return true
	}
	return false
}

// DefaultScope returns the scope an event of type t lands in when the
// caller does not pick one.
func DefaultScope(t Type) Scope {
	switch t {
	case TypePreference:
		return ScopeUser
	case TypeObservation:
		return ScopeSession
	case TypeResearch:
		return ScopePublic
	default: // workflow, decision, error, plan, artifact
		return ScopeProject
	}
}

// ErrValidation marks a rejected event. Callers can test for it with
// errors.Is to distinguish bad input from I/O failures.
var ErrValidation = errors.New("invalid memory event")

// MemoryEvent is the unit of storage. Events are immutable once written:
// promotion and compaction always produce new records.
type MemoryEvent struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	MemoryType  Type           `json:"memory_type"`
	Scope       Scope          `json:"scope"`
	SourceAgent Agent          `json:"source_agent"`
	Context     string         `json:"context,omitempty"`
	Confidence  float64        `json:"confidence"`
	TTLDays     *int           `json:"ttl_days,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewID returns a fresh time-sortable event id.
func NewID() string {
	return ulid.Make().String()
}

// Stamp fills in ID and CreatedAt if absent.
func (e *MemoryEvent) Stamp() {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}

// Validate checks the event invariants: non-empty content, confidence in
// [0,1], and known enumeration values.
func (e *MemoryEvent) Validate() error {
	if e.Content == "" {
		return fmt.Errorf("%w: content cannot be empty", ErrValidation)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrValidation, e.Confidence)
	}
	if !e.MemoryType.Valid() {
		return fmt.Errorf("%w: unknown memory type %q", ErrValidation, e.MemoryType)
	}
	if !e.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrValidation, e.Scope)
	}
	if !e.SourceAgent.Valid() {
		return fmt.Errorf("%w: unknown agent %q", ErrValidation, e.SourceAgent)
	}
	return nil
}

// Clone returns a deep-enough copy for copy-on-write transformations:
// tags and metadata are copied, metadata values are shared.
func (e *MemoryEvent) Clone() *MemoryEvent {
	c := *e
	if e.Tags != nil {
		c.Tags = append([]string(nil), e.Tags...)
	}
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// HasTag reports whether the event carries the given tag.
func (e *MemoryEvent) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ImportanceScore reads the stored importance from metadata, defaulting
// to 0.5 when absent or malformed.
func (e *MemoryEvent) ImportanceScore() float64 {
	return e.MetaFloat("importance_score", 0.5)
}

// MetaString reads a string metadata value, or "" when absent.
func (e *MemoryEvent) MetaString(key string) string {
	if e.Metadata == nil {
		return ""
	}
	s, _ := e.Metadata[key].(string)
	return s
}

// MetaFloat reads a numeric metadata value. JSON numbers decode as
// float64; integers written in-process are handled too.
func (e *MemoryEvent) MetaFloat(key string, def float64) float64 {
	if e.Metadata == nil {
		return def
	}
	switch v := e.Metadata[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}
