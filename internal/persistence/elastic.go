package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/models"
)

const backendElastic = "elasticsearch"

// Index names used by the document database tier.
const (
	indexApplications = "mortgage-applications"
	indexDocuments    = "mortgage-documents"
	indexReports      = "mortgage-batch-reports"
)

// ElasticGateway is the managed document database tier.
type ElasticGateway struct {
	client *elasticsearch.Client
	logger *zap.Logger
}

// ElasticConfig holds connection settings for the document database.
type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
}

// NewElasticGateway creates the document database gateway. Construction
// does not dial; reachability is established by Probe at startup.
func NewElasticGateway(cfg ElasticConfig, logger *zap.Logger) (*ElasticGateway, error) {
	esCfg := elasticsearch.Config{Addresses: cfg.Addresses}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticGateway{client: client, logger: logger}, nil
}

// Backend names the bound storage tier.
func (g *ElasticGateway) Backend() string { return backendElastic }

// Probe pings the cluster once. Called at startup to decide the tier.
func (g *ElasticGateway) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := g.client.Ping(g.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}

// SaveApplication indexes the application document.
func (g *ElasticGateway) SaveApplication(ctx context.Context, app *models.Application) error {
	return g.index(ctx, indexApplications, app.ID, app)
}

// GetApplication returns the application, or nil when it does not exist.
func (g *ElasticGateway) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	found, err := g.get(ctx, indexApplications, id, &app)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &app, nil
}

// SaveDocument indexes the document record.
func (g *ElasticGateway) SaveDocument(ctx context.Context, doc *models.Document) error {
	return g.index(ctx, indexDocuments, doc.ID, doc)
}

// ListDocuments searches the documents index by owning application.
func (g *ElasticGateway) ListDocuments(ctx context.Context, applicationID string) ([]*models.Document, error) {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{
				"application_id": applicationID,
			},
		},
		"sort": []any{
			map[string]any{"uploaded_at": map[string]any{"order": "asc"}},
		},
		"size": 1000,
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, &models.PersistenceError{Op: "load", Backend: backendElastic, Err: err}
	}

	res, err := g.client.Search(
		g.client.Search.WithContext(ctx),
		g.client.Search.WithIndex(indexDocuments),
		g.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, &models.PersistenceError{Op: "load", Backend: backendElastic, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, &models.PersistenceError{Op: "load", Backend: backendElastic,
			Err: fmt.Errorf("search failed: %s", res.Status())}
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, &models.PersistenceError{Op: "load", Backend: backendElastic, Err: err}
	}

	docs := make([]*models.Document, 0, len(parsed.Hits.Hits))
	for i := range parsed.Hits.Hits {
		docs = append(docs, &parsed.Hits.Hits[i].Source)
	}
	return docs, nil
}

// SaveReport indexes the batch report keyed by application.
func (g *ElasticGateway) SaveReport(ctx context.Context, report *models.BatchReport) error {
	if err := g.index(ctx, indexReports, report.ApplicationID, report); err != nil {
		return err
	}
	g.logger.Info("Batch report saved",
		zap.String("application_id", report.ApplicationID),
		zap.String("backend", backendElastic))
	return nil
}

// LoadReport returns the stored batch report for an application.
func (g *ElasticGateway) LoadReport(ctx context.Context, applicationID string) (*models.BatchReport, error) {
	var report models.BatchReport
	found, err := g.get(ctx, indexReports, applicationID, &report)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, models.ErrReportNotFound
	}
	return &report, nil
}

func (g *ElasticGateway) index(ctx context.Context, index, id string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return &models.PersistenceError{Op: "save", Backend: backendElastic, Err: err}
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, g.client)
	if err != nil {
		return &models.PersistenceError{Op: "save", Backend: backendElastic, Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		g.logger.Error("Index request failed",
			zap.String("index", index),
			zap.String("id", id),
			zap.String("status", res.Status()))
		return &models.PersistenceError{Op: "save", Backend: backendElastic,
			Err: fmt.Errorf("index %s failed: %s", index, res.Status())}
	}
	return nil
}

func (g *ElasticGateway) get(ctx context.Context, index, id string, dst any) (bool, error) {
	res, err := g.client.Get(index, id, g.client.Get.WithContext(ctx))
	if err != nil {
		return false, &models.PersistenceError{Op: "load", Backend: backendElastic, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, &models.PersistenceError{Op: "load", Backend: backendElastic,
			Err: fmt.Errorf("get %s/%s failed: %s", index, id, res.Status())}
	}

	var envelope struct {
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return false, &models.PersistenceError{Op: "load", Backend: backendElastic, Err: err}
	}
	if err := json.Unmarshal(envelope.Source, dst); err != nil {
		return false, &models.PersistenceError{Op: "load", Backend: backendElastic, Err: err}
	}
	return true, nil
}
