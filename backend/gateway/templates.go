package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/andi/stepline/backend/models"
)

// The search service returns at most this many candidate templates.
const maxTemplates = 5

// FetchError reports a failed call to an external read-only service. It is
// surfaced inline in the relevant view and never corrupts workflow state.
type FetchError struct {
	Service string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch failed: %v", e.Service, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// TemplateClient looks up step templates by partial name on the external
// search service.
type TemplateClient struct {
	baseURL string
	client  *http.Client
}

// NewTemplateClient creates a template lookup client.
func NewTemplateClient(baseURL string, timeout time.Duration) *TemplateClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TemplateClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Search returns up to 5 candidate step templates matching the partial
// step name, each with its ordered machine list.
func (c *TemplateClient) Search(ctx context.Context, name string) ([]models.StepTemplate, error) {
	endpoint := fmt.Sprintf("%s/templates/search?name=%s&limit=%d",
		c.baseURL, url.QueryEscape(name), maxTemplates)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Service: "template lookup", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Service: "template lookup", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Service: "template lookup",
			Err:     fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var templates []models.StepTemplate
	if err := json.NewDecoder(resp.Body).Decode(&templates); err != nil {
		return nil, &FetchError{Service: "template lookup", Err: err}
	}

	if len(templates) > maxTemplates {
		templates = templates[:maxTemplates]
	}
	return templates, nil
}
