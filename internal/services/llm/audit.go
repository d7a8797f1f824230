package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// Audit operation names.
const (
	AuditOpChat     = "chat"
	AuditOpChatJSON = "chat_json"
)

// auditKeyPrefix namespaces audit entries in the KV store. Keys embed a
// zero-padded nanosecond timestamp so lexical order matches chronological order.
const auditKeyPrefix = "llm_audit:"

// AuditEntry represents a log entry for one LLM call
type AuditEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Operation     string    `json:"operation"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	Duration      int64     `json:"duration_ms"`
	PromptChars   int       `json:"prompt_chars"`
	ResponseChars int       `json:"response_chars"`
	PromptSnippet string    `json:"prompt_snippet,omitempty"`
}

// AuditCall captures one provider invocation for the audit trail
type AuditCall struct {
	Provider      ProviderType
	Model         string
	Operation     string
	Success       bool
	Duration      time.Duration
	Err           error
	Prompt        string
	ResponseChars int
}

// AuditLogger defines the interface for LLM call audit logging
type AuditLogger interface {
	LogCall(ctx context.Context, call AuditCall) error
	GetEntries(ctx context.Context, limit int) ([]AuditEntry, error)
	ExportToJSON(ctx context.Context, w io.Writer) error
	Close() error
}

// KVAuditLogger implements AuditLogger on the key/value store
type KVAuditLogger struct {
	kv         interfaces.KeyValueStorage
	logPrompts bool
	maxEntries int
	logger     arbor.ILogger
	seq        atomic.Uint64
}

// NewKVAuditLogger creates a new KV-backed audit logger
func NewKVAuditLogger(kv interfaces.KeyValueStorage, auditConfig *common.LLMAuditConfig, logger arbor.ILogger) *KVAuditLogger {
	maxEntries := auditConfig.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &KVAuditLogger{
		kv:         kv,
		logPrompts: auditConfig.LogPrompts,
		maxEntries: maxEntries,
		logger:     logger,
	}
}

// LogCall records one provider invocation and prunes entries beyond the
// retention limit. Failures are logged but never surfaced to the caller's
// hot path beyond the returned error.
func (l *KVAuditLogger) LogCall(ctx context.Context, call AuditCall) error {
	entry := AuditEntry{
		Timestamp:     time.Now(),
		Provider:      string(call.Provider),
		Model:         call.Model,
		Operation:     call.Operation,
		Success:       call.Success,
		Duration:      call.Duration.Milliseconds(),
		PromptChars:   common.RuneLen(call.Prompt),
		ResponseChars: call.ResponseChars,
	}
	if call.Err != nil {
		entry.Error = call.Err.Error()
	}
	if l.logPrompts {
		entry.PromptSnippet = common.SnippetRunes(call.Prompt, 200, "...")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	key := fmt.Sprintf("%s%020d_%06d", auditKeyPrefix, entry.Timestamp.UnixNano(), l.seq.Add(1))
	if err := l.kv.Set(ctx, key, string(data), "llm audit entry"); err != nil {
		l.logger.Error().
			Err(err).
			Str("operation", call.Operation).
			Str("provider", string(call.Provider)).
			Msg("Failed to store audit entry")
		return fmt.Errorf("failed to store audit entry: %w", err)
	}

	l.logger.Debug().
		Str("operation", call.Operation).
		Str("provider", string(call.Provider)).
		Bool("success", call.Success).
		Int64("duration_ms", entry.Duration).
		Msg("Logged LLM call")

	return l.prune(ctx)
}

// prune removes the oldest entries once the retention limit is exceeded
func (l *KVAuditLogger) prune(ctx context.Context) error {
	pairs, err := l.kv.ListByPrefix(ctx, auditKeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to list audit entries for pruning: %w", err)
	}
	if len(pairs) <= l.maxEntries {
		return nil
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	excess := pairs[:len(pairs)-l.maxEntries]
	for _, pair := range excess {
		if err := l.kv.Delete(ctx, pair.Key); err != nil {
			l.logger.Warn().Err(err).Str("key", pair.Key).Msg("Failed to prune audit entry")
		}
	}

	l.logger.Debug().Int("pruned", len(excess)).Msg("Pruned oldest audit entries")
	return nil
}

// GetEntries retrieves recent audit entries, newest first
func (l *KVAuditLogger) GetEntries(ctx context.Context, limit int) ([]AuditEntry, error) {
	entries, err := l.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	// Reverse to newest-first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	l.logger.Debug().Int("count", len(entries)).Int("limit", limit).Msg("Retrieved audit entries")
	return entries, nil
}

// ExportToJSON exports all audit entries to JSON format, oldest first
func (l *KVAuditLogger) ExportToJSON(ctx context.Context, w io.Writer) error {
	entries, err := l.loadAll(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(entries); err != nil {
		l.logger.Error().Err(err).Msg("Failed to encode audit entries to JSON")
		return fmt.Errorf("failed to encode audit entries to JSON: %w", err)
	}

	l.logger.Info().Int("count", len(entries)).Msg("Exported audit entries to JSON")
	return nil
}

// loadAll reads every audit entry from the store in chronological order.
// Entries that no longer unmarshal are skipped rather than failing the read.
func (l *KVAuditLogger) loadAll(ctx context.Context) ([]AuditEntry, error) {
	pairs, err := l.kv.ListByPrefix(ctx, auditKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })

	entries := make([]AuditEntry, 0, len(pairs))
	for _, pair := range pairs {
		var entry AuditEntry
		if err := json.Unmarshal([]byte(pair.Value), &entry); err != nil {
			l.logger.Warn().Err(err).Str("key", pair.Key).Msg("Skipping malformed audit entry")
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Close cleans up resources (no-op for the KV store)
func (l *KVAuditLogger) Close() error {
	return nil
}

// NullAuditLogger is a no-op implementation of AuditLogger used when auditing is disabled
type NullAuditLogger struct{}

// NewNullAuditLogger creates a new null audit logger
func NewNullAuditLogger() *NullAuditLogger {
	return &NullAuditLogger{}
}

// LogCall does nothing (no-op)
func (l *NullAuditLogger) LogCall(ctx context.Context, call AuditCall) error {
	return nil
}

// GetEntries returns an empty slice (no-op)
func (l *NullAuditLogger) GetEntries(ctx context.Context, limit int) ([]AuditEntry, error) {
	return []AuditEntry{}, nil
}

// ExportToJSON writes an empty JSON array (no-op)
func (l *NullAuditLogger) ExportToJSON(ctx context.Context, w io.Writer) error {
	_, err := w.Write([]byte("[]"))
	return err
}

// Close does nothing (no-op)
func (l *NullAuditLogger) Close() error {
	return nil
}
