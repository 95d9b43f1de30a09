package derive

import (
	"github.com/google/uuid"

	"docketline/internal/domain"
	"docketline/internal/rules"
)

// The derivation components are pure: they read the catalog and the entities
// they are given and return what should happen. Persisting the results and
// cascading between components is the engine's job.

// Skip reports one document the deriver declined to act on.
type Skip struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// EventOutcome is one derived event; AlreadyExisted marks an idempotency hit
// where the returned event is the pre-existing one.
type EventOutcome struct {
	Event          domain.Event `json:"event"`
	AlreadyExisted bool         `json:"already_existed"`
}

// EventResult is the deriver's structured output.
type EventResult struct {
	Created []EventOutcome `json:"created"`
	Skipped []Skip         `json:"skipped,omitempty"`
}

// DerivationKey fingerprints one (document, catalog version, event type)
// derivation so repeats are recognizable regardless of who asks.
func DerivationKey(documentID, catalogVersion, eventType string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(documentID+"|"+catalogVersion+"|"+eventType)).String()
}

// DeriveEvents maps a document to its canonical events. The existing slice
// holds the case's current events; an ACTIVE event with the same derivation
// key makes the call a no-op for that rule. occurredAt overrides the default
// of the document's received timestamp.
func DeriveEvents(doc domain.Document, kase domain.Case, catalog *rules.Catalog, existing []domain.Event, occurredAt, now string) EventResult {
	var res EventResult
	eventType, ok := catalog.EventTypeFor(doc.Kind, kase.Jurisdiction)
	if !ok {
		res.Skipped = append(res.Skipped, Skip{
			Reason: domain.SkipUnmappedDocumentKind,
			Detail: doc.Kind + " has no mapping for jurisdiction " + kase.Jurisdiction,
		})
		return res
	}
	if catalog.IsExtension(eventType) {
		// An extension grant supersedes one specific deadline; a document
		// alone does not say which, so it must go through the extension
		// operation against the deadline it targets.
		res.Skipped = append(res.Skipped, Skip{
			Reason: domain.SkipExtensionNeedsDeadline,
			Detail: eventType + " must be applied to a deadline, not derived from a document",
		})
		return res
	}
	key := DerivationKey(doc.ID, catalog.Version, eventType)
	for _, e := range existing {
		if e.DerivationKey == key && e.Status == domain.EventActive {
			res.Created = append(res.Created, EventOutcome{Event: e, AlreadyExisted: true})
			return res
		}
	}
	occurred := occurredAt
	if occurred == "" {
		occurred = doc.ReceivedAt
	}
	docID := doc.ID
	res.Created = append(res.Created, EventOutcome{Event: domain.Event{
		ID:            uuid.New().String(),
		CaseID:        kase.ID,
		DocumentID:    &docID,
		Type:          eventType,
		OccurredAt:    occurred,
		Status:        domain.EventActive,
		DerivationKey: key,
		CreatedAt:     now,
	}})
	return res
}
