package projections

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/horizon/services/ledger/config"
	"example.com/horizon/services/ledger/domain"
)

// Indexer projects stored events and access-denied decisions into
// Elasticsearch. Event documents feed downstream search; denial documents
// are the server-side audit trail behind the generic not-found responses
// clients receive on tenant mismatches.
type Indexer struct {
	elasticClient *elasticsearch.Client
	cfg           config.Config
}

// NewIndexer creates a new Elasticsearch indexer
func NewIndexer(elasticClient *elasticsearch.Client, cfg config.Config) *Indexer {
	return &Indexer{
		elasticClient: elasticClient,
		cfg:           cfg,
	}
}

// IndexEvent indexes a stored event
func (p *Indexer) IndexEvent(ctx context.Context, event domain.Event) error {
	doc, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return p.index(ctx, FormatIndex(EventsIndex, p.cfg), event.ID, doc)
}

// accessDenialDoc is the audit record for a tenant-mismatched load
type accessDenialDoc struct {
	AggregateID    string    `json:"aggregate_id"`
	ExpectedTenant string    `json:"expected_tenant"`
	Timestamp      time.Time `json:"timestamp"`
}

// RecordTenantMismatch indexes an access-denied decision. Failures are
// logged and swallowed: the denial itself must not depend on the audit
// sink being reachable.
func (p *Indexer) RecordTenantMismatch(ctx context.Context, aggregateID, expectedTenant string) {
	doc, err := json.Marshal(accessDenialDoc{
		AggregateID:    aggregateID,
		ExpectedTenant: expectedTenant,
		Timestamp:      time.Now(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal access denial document")
		return
	}

	if err := p.index(ctx, FormatIndex(AccessDenialsIndex, p.cfg), uuid.New().String(), doc); err != nil {
		log.Error().Err(err).
			Str("aggregateID", aggregateID).
			Msg("Failed to index access denial")
	}
}

func (p *Indexer) index(ctx context.Context, index, docID string, doc []byte) error {
	res, err := p.elasticClient.Index(
		index,
		bytes.NewReader(doc),
		p.elasticClient.Index.WithDocumentID(docID),
		p.elasticClient.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index document in Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index document in Elasticsearch: %s", res.String())
	}

	return nil
}
