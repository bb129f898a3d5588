package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogEntry is one LLM exchange recorded by the Generation Logger (§4.13).
type LogEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	StepType   string            `json:"step_type"`
	StepName   string            `json:"step_name"`
	Prompt     string            `json:"prompt"`
	Response   string            `json:"response"`
	ModelInfo  string            `json:"model_info"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	DurationMS int64             `json:"duration_ms"`
	TokenUsage int               `json:"token_usage"`
}

// SessionSummary is appended to the session document at finalize.
type SessionSummary struct {
	TotalEntries     int            `json:"total_entries"`
	StepTypeCounts   map[string]int `json:"step_type_histogram"`
	TotalDurationMS  int64          `json:"total_duration_ms"`
	CompletedAt      time.Time      `json:"completed_at"`
}

// SessionInfo identifies one manuscript generation run.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

// SessionDocument is the append-only JSON document persisted per manuscript:
// {session_info, entries[], summary}.
type SessionDocument struct {
	SessionInfo SessionInfo     `json:"session_info"`
	Entries     []LogEntry      `json:"entries"`
	Summary     *SessionSummary `json:"summary,omitempty"`
}

// sessionIndexEntry is one row of sessions.json.
type sessionIndexEntry struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`
}

// fileStore is the minimal persistence surface the Generation Logger needs;
// *storage.FileSystem satisfies it unmodified.
type fileStore interface {
	Save(ctx context.Context, path string, data []byte) error
	Load(ctx context.Context, path string) ([]byte, error)
}

// GenerationLogger appends every LLM exchange for a manuscript session to a
// JSON document, and maintains a sessions.json index.
type GenerationLogger struct {
	store fileStore

	mu       sync.Mutex
	sessions map[string]*SessionDocument
}

// NewGenerationLogger returns a logger persisting through store.
func NewGenerationLogger(store fileStore) *GenerationLogger {
	return &GenerationLogger{store: store, sessions: make(map[string]*SessionDocument)}
}

// StartSession begins a new session for the given manuscript title and
// returns its session ID.
func (g *GenerationLogger) StartSession(title string) string {
	sessionID := uuid.New().String()
	g.mu.Lock()
	g.sessions[sessionID] = &SessionDocument{
		SessionInfo: SessionInfo{SessionID: sessionID, Title: title, StartedAt: time.Now()},
	}
	g.mu.Unlock()
	return sessionID
}

// Append records one LLM exchange under sessionID. Persistence failures are
// logged by the caller's discretion but never surfaced as a pipeline error —
// the Generation Logger is a best-effort side channel.
func (g *GenerationLogger) Append(sessionID string, entry LogEntry) {
	g.mu.Lock()
	if doc, ok := g.sessions[sessionID]; ok {
		doc.Entries = append(doc.Entries, entry)
	}
	g.mu.Unlock()
}

// Finalize computes the summary and persists the session document plus its
// sessions.json index row.
func (g *GenerationLogger) Finalize(ctx context.Context, sessionID, safeTitle string) (*SessionDocument, error) {
	g.mu.Lock()
	doc, ok := g.sessions[sessionID]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown session %q", sessionID)
	}

	summary := &SessionSummary{
		TotalEntries:    len(doc.Entries),
		StepTypeCounts:  make(map[string]int),
		CompletedAt:     time.Now(),
	}
	for _, e := range doc.Entries {
		summary.StepTypeCounts[e.StepType]++
		summary.TotalDurationMS += e.DurationMS
	}

	g.mu.Lock()
	doc.Summary = summary
	g.mu.Unlock()

	path := fmt.Sprintf("logs/generation/%s_%d_%s.json", safeTitle, time.Now().Unix(), sessionID)
	if g.store != nil {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err == nil {
			_ = g.store.Save(ctx, path, data)
			g.appendToIndex(ctx, sessionIndexEntry{
				SessionID: sessionID,
				Title:     doc.SessionInfo.Title,
				Path:      path,
				StartedAt: doc.SessionInfo.StartedAt,
			})
		}
	}
	return doc, nil
}

func (g *GenerationLogger) appendToIndex(ctx context.Context, row sessionIndexEntry) {
	const indexPath = "logs/generation/sessions.json"
	var index []sessionIndexEntry
	if existing, err := g.store.Load(ctx, indexPath); err == nil {
		_ = json.Unmarshal(existing, &index)
	}
	index = append(index, row)
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return
	}
	_ = g.store.Save(ctx, indexPath, data)
}
