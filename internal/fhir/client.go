package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const searchPageSize = 100

// Client talks to one FHIR R4 server with Basic auth. All requests go
// through a circuit breaker so a flapping upstream stops the sync loop from
// hammering it.
type Client struct {
	baseURL string
	user    string
	pass    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Bundle]
	log     *zap.Logger
}

func NewClient(baseURL, user, pass string, timeout time.Duration, log *zap.Logger) *Client {
	settings := gobreaker.Settings{
		Name:    "fhir-upstream",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("fhir circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		baseURL: baseURL,
		user:    user,
		pass:    pass,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: gobreaker.NewCircuitBreaker[*Bundle](settings),
		log:     log,
	}
}

// SearchSchedules returns all Schedule resources whose actor is the given
// practitioner, walking every page of the searchset.
func (c *Client) SearchSchedules(ctx context.Context, practitionerID string) ([]Resource, error) {
	q := url.Values{}
	q.Set("actor", "Practitioner/"+practitionerID)
	q.Set("_count", fmt.Sprintf("%d", searchPageSize))
	return c.searchAll(ctx, "Schedule", q)
}

// SearchSlots returns every Slot attached to the schedule whose start falls
// inside [from, to).
func (c *Client) SearchSlots(ctx context.Context, scheduleID string, from, to time.Time) ([]Resource, error) {
	q := url.Values{}
	q.Set("schedule", "Schedule/"+scheduleID)
	q.Set("start", "ge"+from.UTC().Format(time.RFC3339))
	q.Add("start", "lt"+to.UTC().Format(time.RFC3339))
	q.Set("_count", fmt.Sprintf("%d", searchPageSize))
	return c.searchAll(ctx, "Slot", q)
}

func (c *Client) searchAll(ctx context.Context, resourceType string, query url.Values) ([]Resource, error) {
	next := fmt.Sprintf("%s/%s?%s", c.baseURL, resourceType, query.Encode())

	var out []Resource
	for next != "" {
		bundle, err := c.fetchBundle(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", resourceType, err)
		}
		for _, e := range bundle.Entry {
			if e.Resource.ResourceType == resourceType {
				out = append(out, e.Resource)
			}
		}
		next = bundle.NextURL()
	}
	return out, nil
}

func (c *Client) fetchBundle(ctx context.Context, rawURL string) (*Bundle, error) {
	return c.breaker.Execute(func() (*Bundle, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.user, c.pass)
		req.Header.Set("Accept", "application/fhir+json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return nil, fmt.Errorf("fhir server status=%d body=%s", resp.StatusCode, string(b))
		}

		var bundle Bundle
		if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
			return nil, fmt.Errorf("decoding bundle: %w", err)
		}
		if bundle.ResourceType != "Bundle" {
			return nil, fmt.Errorf("unexpected resource type %q", bundle.ResourceType)
		}
		return &bundle, nil
	})
}
