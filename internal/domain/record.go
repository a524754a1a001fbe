package domain

import (
	"time"

	json "github.com/goccy/go-json"
)

type RecordKind string

const (
	KindMessagingStrategy RecordKind = "messaging_strategy"
	KindOfferOutline      RecordKind = "offer_outline"
	KindSalesPageDraft    RecordKind = "sales_page_draft"
	KindContentPlan       RecordKind = "content_plan"
	KindOfferWorkspace    RecordKind = "offer_workspace"
)

// KindRequiresActive reports whether a scope of this kind must keep exactly
// one active record once any record exists. Kinds outside this set tolerate
// zero actives (a scope may be explicitly deactivated).
func KindRequiresActive(kind RecordKind) bool {
	switch kind {
	case KindMessagingStrategy, KindOfferWorkspace:
		return true
	default:
		return false
	}
}

// DefaultScopeKey partitions single-offer entities: owners who never work
// with multiple offers keep all versions under scope 1.
const DefaultScopeKey = 1

// Scope identifies the set of versions among which "active" must be unique.
type Scope struct {
	OwnerID  string `json:"owner_id"`
	ScopeKey int    `json:"scope_key"`
}

func NewScope(ownerID string, scopeKey int) Scope {
	if scopeKey <= 0 {
		scopeKey = DefaultScopeKey
	}
	return Scope{OwnerID: ownerID, ScopeKey: scopeKey}
}

func (s Scope) Validate() error {
	if s.OwnerID == "" {
		return NewValidationError("scope", "owner_id cannot be empty")
	}
	if s.ScopeKey <= 0 {
		return NewValidationError("scope", "scope_key must be positive")
	}
	return nil
}

// VersionedRecord is one version of an owner's content record. Activation
// only ever flips IsActive; Content is immutable after insert so prior
// versions stay inspectable.
type VersionedRecord struct {
	ID        string          `json:"id"`
	Kind      RecordKind      `json:"kind"`
	OwnerID   string          `json:"owner_id"`
	ScopeKey  int             `json:"scope_key"`
	Version   int64           `json:"version"`
	IsActive  bool            `json:"is_active"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (r *VersionedRecord) Scope() Scope {
	return Scope{OwnerID: r.OwnerID, ScopeKey: r.ScopeKey}
}

func (r *VersionedRecord) Validate() error {
	if r.ID == "" {
		return NewValidationError("record", "id cannot be empty")
	}
	if r.Kind == "" {
		return NewValidationError("record", "kind cannot be empty")
	}
	if err := r.Scope().Validate(); err != nil {
		return err
	}
	if r.Version <= 0 {
		return NewValidationError("record", "version must be positive")
	}
	if len(r.Content) == 0 {
		return NewValidationError("record", "content cannot be empty")
	}
	return nil
}
