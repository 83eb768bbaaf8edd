// Package catalog implementa el puerto del catálogo de camas contra el
// servicio externo de la unidad, con un catálogo estático de respaldo para
// dev y para cuando el servicio no está configurado.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"ward-daily-census/internal/ports/catalog"
)

// DefaultBeds es el catálogo de respaldo de la unidad.
var DefaultBeds = []string{
	"101", "102", "103", "104", "105", "106",
	"107", "108", "109", "110", "111", "112",
}

type Static struct {
	beds []string
}

func NewStatic(beds []string) *Static {
	if len(beds) == 0 {
		beds = DefaultBeds
	}
	out := make([]string, len(beds))
	copy(out, beds)
	sort.Strings(out)
	return &Static{beds: out}
}

func (s *Static) Beds(ctx context.Context) ([]string, error) {
	out := make([]string, len(s.beds))
	copy(out, s.beds)
	return out, nil
}

// Client consulta el servicio de catálogo por HTTP y cae al respaldo
// estático si el servicio falla: el censo no puede quedarse sin camas por
// una caída del catálogo.
type Client struct {
	http     *resty.Client
	fallback *Static
}

type bedsResponse struct {
	Beds []string `json:"beds"`
}

func NewClient(baseURL string, timeout time.Duration, fallback *Static) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("catalog base url required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if fallback == nil {
		fallback = NewStatic(nil)
	}
	http := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(1)
	return &Client{http: http, fallback: fallback}, nil
}

func (c *Client) Beds(ctx context.Context) ([]string, error) {
	var out bedsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/catalog/beds")
	if err != nil || resp.IsError() || len(out.Beds) == 0 {
		return c.fallback.Beds(ctx)
	}
	beds := out.Beds
	sort.Strings(beds)
	return beds, nil
}

var _ catalog.Directory = (*Client)(nil)
var _ catalog.Directory = (*Static)(nil)
