package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeCluster answers like Elasticsearch and records what it was sent.
type fakeCluster struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	f.handler(w, r)
}

func setupIndexer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Indexer, *fakeCluster) {
	cluster := &fakeCluster{handler: handler}
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewIndexer(client, "", logger.NewNoOpLogger()), cluster
}

func sampleRecord() models.ApplicationRecord {
	return models.ApplicationRecord{
		ApplicationID: "app-1",
		SubmittedAt:   time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		LoanApplication: models.LoanApplication{
			ApplicantName: "John Doe",
			CreditScore:   750,
			LoanAmount:    200000,
		},
		UnderwritingDecision: models.UnderwritingDecision{
			Status:       models.StatusApproved,
			RiskScore:    437.5,
			Reasoning:    "Approved",
			StageResults: []models.StageResult{},
		},
	}
}

func TestIndexer_IndexRecord(t *testing.T) {
	idx, cluster := setupIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	require.NoError(t, idx.IndexRecord(context.Background(), sampleRecord()))

	require.Len(t, cluster.requests, 1)
	req := cluster.requests[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/loan-applications/_doc/app-1", req.Path)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(req.Body), &doc))
	assert.Equal(t, "John Doe", doc["applicant_name"])
	assert.Equal(t, "approved", doc["decision"])
}

func TestIndexer_IndexRecordClusterError(t *testing.T) {
	idx, _ := setupIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"cluster_block_exception"}`))
	})

	err := idx.IndexRecord(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSearchIndexFailed, apperrors.CodeOf(err))
}

func TestIndexer_SearchByApplicant(t *testing.T) {
	idx, cluster := setupIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		rec := sampleRecord()
		body, _ := json.Marshal(map[string]interface{}{
			"hits": map[string]interface{}{
				"hits": []interface{}{map[string]interface{}{"_source": rec}},
			},
		})
		_, _ = w.Write(body)
	})

	recs, err := idx.SearchByApplicant(context.Background(), "john doe", 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "app-1", recs[0].ApplicationID)

	require.Len(t, cluster.requests, 1)
	assert.Equal(t, "/loan-applications/_search", cluster.requests[0].Path)
	assert.True(t, strings.Contains(cluster.requests[0].Body, `"applicant_name"`))
}

func TestIndexer_EnsureIndexCreatesWhenMissing(t *testing.T) {
	idx, cluster := setupIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	})

	require.NoError(t, idx.EnsureIndex(context.Background()))
	require.Len(t, cluster.requests, 2)
	assert.Equal(t, http.MethodPut, cluster.requests[1].Method)
	assert.Contains(t, cluster.requests[1].Body, `"mappings"`)
}

func TestIndexer_EnsureIndexNoopWhenPresent(t *testing.T) {
	idx, cluster := setupIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Len(t, cluster.requests, 1)
}
