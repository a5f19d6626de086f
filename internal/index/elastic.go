// Package index persists fragment records in the search store with
// replace-before-write semantics: indexing a document first removes
// every fragment previously stored under its id.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/gestordocs/ingestor/internal/config"
	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/models"
)

// ElasticIndexer writes fragments to an Elasticsearch index with a
// dense_vector mapping sized to the embedding dimensionality. Fragment
// ids are "<document_id>:<sequence_no>" so a re-run overwrites rather
// than duplicates.
type ElasticIndexer struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
}

func NewElasticIndexer(ctx context.Context, cfg *config.Config) (*ElasticIndexer, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.ElasticURL},
	}
	if cfg.ElasticUser != "" {
		esCfg.Username = cfg.ElasticUser
		esCfg.Password = cfg.ElasticPass
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	idx := &ElasticIndexer{
		client:    client,
		indexName: cfg.IndexName,
		logger:    slog.Default().With("component", "index.elastic"),
	}
	if err := idx.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// indexMapping fixes the vector width at creation time. A later change
// to the dimensionality needs a new index, not a mapping update.
func indexMapping() string {
	return fmt.Sprintf(`{
	  "mappings": {
	    "properties": {
	      "document_id":       {"type": "keyword"},
	      "chunk_sequence_no": {"type": "integer"},
	      "text":              {"type": "text"},
	      "vector":            {"type": "dense_vector", "dims": %d, "index": true, "similarity": "cosine"},
	      "is_public":         {"type": "boolean"},
	      "area_ids":          {"type": "keyword"},
	      "metadata": {
	        "properties": {
	          "titulo":             {"type": "text"},
	          "descripcion":        {"type": "text"},
	          "tipo_documento":     {"type": "keyword"},
	          "autor":              {"type": "keyword"},
	          "fecha_creacion":     {"type": "keyword"},
	          "fecha_modificacion": {"type": "keyword"},
	          "paginas":            {"type": "integer"}
	        }
	      }
	    }
	  }
	}`, core.EmbeddingDim)
}

func (e *ElasticIndexer) ensureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists(
		[]string{e.indexName},
		e.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: index exists check: %v", core.ErrTransient, err)
	}
	defer res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}
	if res.StatusCode != 404 {
		return fmt.Errorf("%w: index exists check: %s", core.ErrTransient, res.Status())
	}

	createRes, err := e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithContext(ctx),
		e.client.Indices.Create.WithBody(strings.NewReader(indexMapping())),
	)
	if err != nil {
		return fmt.Errorf("%w: create index: %v", core.ErrTransient, err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		// A concurrent creator winning the race is fine.
		if createRes.StatusCode == 400 && strings.Contains(bodyString(createRes), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("%w: create index %s: %s", core.ErrSchema, e.indexName, bodyString(createRes))
	}
	e.logger.Info("index created", "index", e.indexName)
	return nil
}

// IndexDocument deletes the document's old fragments, then bulk-writes
// the new ones with refresh so a subsequent search sees the fresh set.
func (e *ElasticIndexer) IndexDocument(ctx context.Context, documentID string, records []models.IndexRecord) error {
	if err := e.deleteFragments(ctx, documentID); err != nil {
		return err
	}
	if len(records) == 0 {
		e.logger.Debug("document indexed with no fragments", "document_id", documentID)
		return nil
	}

	var buf bytes.Buffer
	for _, rec := range records {
		action, err := bulkAction(rec.DocumentID, rec.ChunkSequenceNo)
		if err != nil {
			return fmt.Errorf("marshal action for fragment %d: %w", rec.ChunkSequenceNo, err)
		}
		buf.Write(action)
		buf.WriteByte('\n')
		doc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal fragment %d: %w", rec.ChunkSequenceNo, err)
		}
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithContext(ctx),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("%w: bulk index: %v", core.ErrTransient, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: bulk index: %s", core.ErrTransient, bodyString(res))
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("%w: decode bulk response: %v", core.ErrTransient, err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, r := range item {
				if r.Error != nil {
					return fmt.Errorf("%w: bulk item failed: %s: %s", core.ErrTransient, r.Error.Type, r.Error.Reason)
				}
			}
		}
		return fmt.Errorf("%w: bulk index reported item failures", core.ErrTransient)
	}

	e.logger.Debug("document indexed", "document_id", documentID, "fragments", len(records))
	return nil
}

// bulkAction builds the NDJSON action line for one fragment. The id is
// JSON-encoded so document ids carrying quotes or backslashes stay valid.
func bulkAction(documentID string, sequenceNo int) ([]byte, error) {
	return json.Marshal(map[string]map[string]string{
		"index": {"_id": fmt.Sprintf("%s:%d", documentID, sequenceNo)},
	})
}

func (e *ElasticIndexer) deleteFragments(ctx context.Context, documentID string) error {
	query := fmt.Sprintf(`{"query":{"term":{"document_id":%q}}}`, documentID)
	res, err := e.client.DeleteByQuery(
		[]string{e.indexName},
		strings.NewReader(query),
		e.client.DeleteByQuery.WithContext(ctx),
		e.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("%w: delete fragments: %v", core.ErrTransient, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: delete fragments: %s", core.ErrTransient, bodyString(res))
	}
	return nil
}

func bodyString(res *esapi.Response) string {
	b, _ := io.ReadAll(res.Body)
	return string(b)
}

func marshalRecordMetadata(meta models.RecordMetadata) ([]byte, error) {
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}
