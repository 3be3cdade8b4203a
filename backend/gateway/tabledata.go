package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TableRow is one production-table row recorded for a machine.
type TableRow struct {
	ID           string `json:"id"`
	RecordedAt   string `json:"recorded_at"`
	OperatorName string `json:"operator_name"`
	Quantity     int    `json:"quantity"`
	Defects      int    `json:"defects"`
	Remarks      string `json:"remarks,omitempty"`
}

// OperatorSession is one operator work interval on a machine.
type OperatorSession struct {
	OperatorName string `json:"operator_name"`
	StartedAt    string `json:"started_at"`
	EndedAt      string `json:"ended_at,omitempty"`
	State        string `json:"state"`
}

// TableTotals are the reporting service's calculated totals for a machine.
type TableTotals struct {
	Quantity int `json:"quantity"`
	Defects  int `json:"defects"`
	Minutes  int `json:"minutes"`
}

// TableData is the read-only production view for one machine of one order.
type TableData struct {
	OrderID   string            `json:"order_id"`
	MachineID string            `json:"machine_id"`
	Rows      []TableRow        `json:"rows"`
	Sessions  []OperatorSession `json:"sessions"`
	Totals    TableTotals       `json:"totals"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// TableClient fetches production-table data from the external reporting
// service. Printing and spreadsheet export live on that service too; this
// side only reads.
type TableClient struct {
	baseURL string
	client  *http.Client
}

// NewTableClient creates a table data client.
func NewTableClient(baseURL string, timeout time.Duration) *TableClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TableClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch returns rows, operator session history and totals for one machine
// of one order.
func (c *TableClient) Fetch(ctx context.Context, orderID, machineID string) (*TableData, error) {
	endpoint := fmt.Sprintf("%s/orders/%s/machines/%s/table",
		c.baseURL, url.PathEscape(orderID), url.PathEscape(machineID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Service: "table data", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Service: "table data", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Service: "table data",
			Err:     fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var data TableData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &FetchError{Service: "table data", Err: err}
	}

	data.OrderID = orderID
	data.MachineID = machineID
	if data.FetchedAt.IsZero() {
		data.FetchedAt = time.Now()
	}
	return &data, nil
}
