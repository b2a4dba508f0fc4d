// Package notify delivers status-change notifications to a webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mellooticas/desenrola-dcl/internal/model"
)

// Client posts pedido lifecycle notifications to a configured webhook URL.
// A nil or unconfigured client is a no-op.
type Client struct {
	webhookURL string
	httpClient *retryablehttp.Client
}

type statusChangedPayload struct {
	PedidoID       string `json:"pedido_id"`
	StatusAnterior string `json:"status_anterior"`
	StatusNovo     string `json:"status_novo"`
	Usuario        string `json:"usuario"`
	Observacao     string `json:"observacao,omitempty"`
	OcorridoEm     string `json:"ocorrido_em"`
}

// NewClient creates a webhook client for the given URL.
func NewClient(webhookURL string) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = 5 * time.Second
	c.Logger = nil

	return &Client{
		webhookURL: strings.TrimRight(webhookURL, "/"),
		httpClient: c,
	}
}

// StatusChanged posts a status-change notification. Delivery is
// best-effort: callers log failures and never block a transition on them.
func (c *Client) StatusChanged(ctx context.Context, evento *model.PedidoEvento) error {
	if c == nil || c.webhookURL == "" {
		return nil
	}

	payload := statusChangedPayload{
		PedidoID:       evento.PedidoID.String(),
		StatusAnterior: string(evento.StatusAnterior),
		StatusNovo:     string(evento.StatusNovo),
		Usuario:        evento.Usuario,
		Observacao:     evento.Observacao,
		OcorridoEm:     evento.CriadoEm.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
