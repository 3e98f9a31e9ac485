package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rmolina/gamebind/pkg/entities"
)

// ElasticsearchConfig holds configuration options for the redemption archive
type ElasticsearchConfig struct {
	URL       string
	Username  string
	Password  string
	Index     string
	BatchSize int // Batch size for bulk operations
}

// DefaultElasticsearchConfig returns a default configuration for the archive
func DefaultElasticsearchConfig() *ElasticsearchConfig {
	return &ElasticsearchConfig{
		URL:       "http://localhost:9200",
		Index:     "gamebind_redemptions",
		BatchSize: 100,
	}
}

// ElasticsearchArchive stores terminal redemption transactions in
// Elasticsearch for audit queries and reconciliation lookups by idempotency
// token. It is an archive next to the primary Repository, not a replacement.
type ElasticsearchArchive struct {
	client *elasticsearch.Client
	config *ElasticsearchConfig
}

// NewElasticsearchArchive creates a new redemption archive
func NewElasticsearchArchive(config *ElasticsearchConfig) (*ElasticsearchArchive, error) {
	// Configure the Elasticsearch client
	cfg := elasticsearch.Config{
		Addresses: []string{config.URL},
	}

	// Add authentication if provided
	if config.Username != "" && config.Password != "" {
		cfg.Username = config.Username
		cfg.Password = config.Password
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	if config.Index == "" {
		config.Index = "gamebind_redemptions"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	archive := &ElasticsearchArchive{
		client: client,
		config: config,
	}

	if err := archive.initIndex(context.Background()); err != nil {
		return nil, err
	}

	return archive, nil
}

// initIndex creates the redemption index if it doesn't exist
func (a *ElasticsearchArchive) initIndex(ctx context.Context) error {
	res, err := a.client.Indices.Exists([]string{a.config.Index})
	if err != nil {
		return fmt.Errorf("error checking if redemption index exists: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != 404 {
		return nil
	}

	mapping := `{
		"mappings": {
			"properties": {
				"transaction_id": { "type": "keyword" },
				"idempotency_token": { "type": "keyword" },
				"identity": { "type": "keyword" },
				"handle": { "type": "keyword" },
				"points_reserved": { "type": "long" },
				"currency_amount": { "type": "long" },
				"status": { "type": "keyword" },
				"external_response": { "type": "text" },
				"memo": { "type": "text" },
				"created_at": { "type": "date" },
				"resolved_at": { "type": "date" }
			}
		}
	}`

	req := esapi.IndicesCreateRequest{
		Index: a.config.Index,
		Body:  bytes.NewReader([]byte(mapping)),
	}

	createRes, err := req.Do(ctx, a.client)
	if err != nil {
		return fmt.Errorf("error creating redemption index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("error creating redemption index: %s", createRes.String())
	}

	return nil
}

// ArchiveRedemptions bulk-indexes terminal redemption transactions. Documents
// are keyed by transaction id, so re-archiving the same transaction is an
// overwrite rather than a duplicate.
func (a *ElasticsearchArchive) ArchiveRedemptions(ctx context.Context, txns []*entities.RedemptionTransaction) error {
	if len(txns) == 0 {
		return nil
	}

	for start := 0; start < len(txns); start += a.config.BatchSize {
		end := start + a.config.BatchSize
		if end > len(txns) {
			end = len(txns)
		}

		var buf bytes.Buffer
		for _, txn := range txns[start:end] {
			meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":%q}}`, a.config.Index, txn.ID)
			doc, err := json.Marshal(toESRecord(txn))
			if err != nil {
				return fmt.Errorf("error marshaling redemption %s: %w", txn.ID, err)
			}
			buf.WriteString(meta)
			buf.WriteByte('\n')
			buf.Write(doc)
			buf.WriteByte('\n')
		}

		res, err := a.client.Bulk(bytes.NewReader(buf.Bytes()),
			a.client.Bulk.WithContext(ctx),
			a.client.Bulk.WithIndex(a.config.Index),
		)
		if err != nil {
			return fmt.Errorf("error bulk indexing redemptions: %w", err)
		}

		if res.IsError() {
			body := res.String()
			res.Body.Close()
			return fmt.Errorf("error bulk indexing redemptions: %s", body)
		}
		res.Body.Close()

		log.Printf("[ARCHIVE] Indexed %d redemption transactions", end-start)
	}

	return nil
}

// esSearchResult mirrors the slice of the search response we read
type esSearchResult struct {
	Hits struct {
		Hits []struct {
			Source ESRedemptionRecord `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchByToken retrieves archived redemption records matching an idempotency
// token. Used by reconciliation tooling to answer "did we ever resolve this".
func (a *ElasticsearchArchive) SearchByToken(ctx context.Context, token string) ([]*ESRedemptionRecord, error) {
	query := fmt.Sprintf(`{
		"query": {
			"term": { "idempotency_token": %q }
		}
	}`, token)

	res, err := a.client.Search(
		a.client.Search.WithContext(ctx),
		a.client.Search.WithIndex(a.config.Index),
		a.client.Search.WithBody(strings.NewReader(query)),
		a.client.Search.WithSize(10),
	)
	if err != nil {
		return nil, fmt.Errorf("error searching redemptions: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching redemptions: %s", res.String())
	}

	var result esSearchResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding search response: %w", err)
	}

	records := make([]*ESRedemptionRecord, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		record := hit.Source
		records = append(records, &record)
	}

	return records, nil
}
