// pkg/cloud/http.go
package cloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"resetctl/pkg/inventory"
)

// httpDeleter issues DELETE calls against a management endpoint, ARM style:
// DELETE {base}/{resource-id}. A 404 counts as success (already gone).
type httpDeleter struct {
	base   string
	token  string
	client *http.Client
	log    *zap.SugaredLogger
}

func NewHTTPDeleter(base, token string, log *zap.SugaredLogger) Deleter {
	return &httpDeleter{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		client: &http.Client{Timeout: 60 * time.Second},
		log:    log,
	}
}

func (d *httpDeleter) DeleteResource(ctx context.Context, r inventory.Resource) error {
	u := d.base + "/" + strings.TrimLeft(r.ID, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		d.log.Debugw("resource already gone", "id", r.ID)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("delete %s: status %d: %s", r.ID, resp.StatusCode, strings.TrimSpace(string(snippet)))
}

// noopDeleter logs would-be deletions without performing them. Dev fallback
// when CLOUD_API_URL is unset; never wire it in prod.
type noopDeleter struct {
	log *zap.SugaredLogger
}

func NewNoopDeleter(log *zap.SugaredLogger) Deleter {
	return &noopDeleter{log: log}
}

func (d *noopDeleter) DeleteResource(ctx context.Context, r inventory.Resource) error {
	d.log.Infow("dry delete (no cloud endpoint configured)", "id", r.ID, "type", r.Type)
	return nil
}
