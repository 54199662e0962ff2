// Package search mirrors decided applications into Elasticsearch so
// reviewers can look them up by applicant.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "loan-applications"

const indexMapping = `{
  "mappings": {
    "properties": {
      "application_id":   {"type": "keyword"},
      "applicant_name":   {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "loan_purpose":     {"type": "keyword"},
      "employment_type":  {"type": "keyword"},
      "decision":         {"type": "keyword"},
      "source":           {"type": "keyword"},
      "credit_score":     {"type": "integer"},
      "loan_amount":      {"type": "double"},
      "approved_amount":  {"type": "double"},
      "risk_score":       {"type": "double"},
      "submitted_at":     {"type": "date"},
      "stage_results":    {"type": "object", "enabled": false}
    }
  }
}`

type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	if index == "" {
		index = DefaultIndex
	}
	return &Indexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "search_indexer", "index": index}),
	}
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{i.index}}.Do(ctx, i.client)
	if err != nil {
		return apperrors.NewSearchIndexFailedError(err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = esapi.IndicesCreateRequest{
		Index: i.index,
		Body:  bytes.NewReader([]byte(indexMapping)),
	}.Do(ctx, i.client)
	if err != nil {
		return apperrors.NewSearchIndexFailedError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.NewSearchIndexFailedError(responseError(res))
	}
	i.logger.Info("search index created", nil)
	return nil
}

// IndexRecord writes rec under its application id, replacing any earlier copy.
func (i *Indexer) IndexRecord(ctx context.Context, rec models.ApplicationRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return apperrors.NewSearchIndexFailedError(err)
	}

	res, err := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: rec.ApplicationID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, i.client)
	if err != nil {
		return apperrors.NewSearchIndexFailedError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.NewSearchIndexFailedError(responseError(res))
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.ApplicationRecord `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchByApplicant returns the newest records whose applicant name matches.
func (i *Indexer) SearchByApplicant(ctx context.Context, name string, size int) ([]models.ApplicationRecord, error) {
	if size <= 0 {
		size = 10
	}
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"applicant_name": map[string]interface{}{
					"query":    name,
					"operator": "and",
				},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"submitted_at": map[string]interface{}{"order": "desc"}},
		},
	}
	body, _ := json.Marshal(query)

	res, err := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}.Do(ctx, i.client)
	if err != nil {
		return nil, apperrors.NewSearchIndexFailedError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, apperrors.NewSearchIndexFailedError(responseError(res))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewSearchIndexFailedError(err)
	}
	out := make([]models.ApplicationRecord, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out, nil
}

func responseError(res *esapi.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("elasticsearch returned %s: %s", res.Status(), bytes.TrimSpace(msg))
}
