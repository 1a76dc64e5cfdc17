// pkg/inventory/graph.go
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	jmes "github.com/jmespath/go-jmespath"
	"go.uber.org/zap"
)

// graphProvider queries an external resource-graph endpoint over HTTP and
// extracts rows with JMESPath expressions, so differently shaped graph
// responses can be adapted via env without code changes.
type graphProvider struct {
	url    string
	client *http.Client
	log    *zap.SugaredLogger

	rows *jmes.JMESPath
	cols map[string]*jmes.JMESPath
}

// Default extraction paths; override via GRAPH_ROWS_PATH / GRAPH_COL_<FIELD>_PATH.
const defaultRowsPath = "data"

// NewGraphProvider builds a Provider over a graph query endpoint.
func NewGraphProvider(url string, log *zap.SugaredLogger) (Provider, error) {
	rowsPath := os.Getenv("GRAPH_ROWS_PATH")
	if rowsPath == "" {
		rowsPath = defaultRowsPath
	}
	rows, err := jmes.Compile(rowsPath)
	if err != nil {
		return nil, err
	}
	cols := map[string]*jmes.JMESPath{}
	for field, def := range map[string]string{
		"id":             "id",
		"subscriptionId": "subscriptionId",
		"resourceGroup":  "resourceGroup",
		"type":           "type",
		"name":           "name",
	} {
		path := os.Getenv("GRAPH_COL_" + strings.ToUpper(field) + "_PATH")
		if path == "" {
			path = def
		}
		c, err := jmes.Compile(path)
		if err != nil {
			return nil, err
		}
		cols[field] = c
	}
	return &graphProvider{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
		rows:   rows,
		cols:   cols,
	}, nil
}

func (g *graphProvider) Snapshot(ctx context.Context, tenantID string) (Snapshot, error) {
	body, _ := json.Marshal(map[string]any{"tenantId": tenantID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return Snapshot{}, ErrUnavailable
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warnw("graph query failed", "tenant", tenantID, "err", err)
		return Snapshot{}, ErrUnavailable
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Snapshot{}, ErrTenantNotFound
	}
	if resp.StatusCode != http.StatusOK {
		g.log.Warnw("graph query non-200", "tenant", tenantID, "status", resp.StatusCode)
		return Snapshot{}, ErrUnavailable
	}
	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Snapshot{}, ErrUnavailable
	}
	rowsVal, err := g.rows.Search(doc)
	if err != nil {
		return Snapshot{}, ErrUnavailable
	}
	rows, ok := rowsVal.([]any)
	if !ok {
		return Snapshot{}, ErrUnavailable
	}
	snap := Snapshot{TenantID: tenantID}
	for _, row := range rows {
		r := Resource{TenantID: tenantID}
		r.ID = g.str(row, "id")
		if r.ID == "" {
			continue
		}
		r.SubscriptionID = g.str(row, "subscriptionId")
		r.ResourceGroup = g.str(row, "resourceGroup")
		r.Type = g.str(row, "type")
		r.Name = g.str(row, "name")
		snap.Resources = append(snap.Resources, r)
	}
	return snap, nil
}

func (g *graphProvider) str(row any, field string) string {
	v, err := g.cols[field].Search(row)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
