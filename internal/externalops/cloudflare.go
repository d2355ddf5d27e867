package externalops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reseda/meshd/internal/meshnode"
	"github.com/reseda/meshd/internal/telemetry"
)

// dnsTTL and dnsPriority are fixed per spec.md §4.2/§6.
const (
	dnsTTL            = 3600
	dnsPriority       = 10
	certValidityDays  = 5475
	certRequestType   = "origin-rsa"
	certZoneHostname  = "reseda.app"
	geolocationAPIFmt = "https://ipgeolocationapi.co/v1/%s"
)

// CloudflareOps is the production Ops implementation: a DNS/certificate
// provider client plus an IP-geolocation client and the node health probe,
// following the `do(ctx, method, path, body, result)` client shape of the
// teacher's pkg/mattermost.Client.
type CloudflareOps struct {
	httpClient *http.Client
	logger     *slog.Logger

	apiBaseURL   string // e.g. "https://api.cloudflare.com/client/v4"
	zoneID       string
	apiToken     string
	geolocateURL string // override point for tests; defaults to geolocationAPIFmt
}

// NewCloudflareOps creates a CloudflareOps client. apiToken is the
// CLOUDFLARE_KEY configuration value (spec.md §6).
func NewCloudflareOps(zoneID, apiToken string, logger *slog.Logger) *CloudflareOps {
	return &CloudflareOps{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		apiBaseURL:   "https://api.cloudflare.com/client/v4",
		zoneID:       zoneID,
		apiToken:     apiToken,
		geolocateURL: geolocationAPIFmt,
	}
}

type ipGeolocationResponse struct {
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Region      string  `json:"region"`
	City        string  `json:"city"`
	Lat         float32 `json:"lat"`
	Lon         float32 `json:"lon"`
	Timezone    string  `json:"timezone"`
}

// recordCall tallies an external call's outcome for telemetry.ExternalCallsTotal.
func recordCall(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	telemetry.ExternalCallsTotal.WithLabelValues(op, outcome).Inc()
}

// Geolocate resolves ip via the IP-geolocation service.
func (c *CloudflareOps) Geolocate(ctx context.Context, ip string) (loc meshnode.Location, err error) {
	defer func() { recordCall("geolocate", err) }()
	var resp ipGeolocationResponse
	url := fmt.Sprintf(c.geolocateURL, ip)
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return meshnode.Location{}, fmt.Errorf("%w: geolocating %s: %v", ErrTransient, ip, err)
	}
	return meshnode.Location{
		Country:     resp.Country,
		CountryCode: resp.CountryCode,
		Region:      resp.Region,
		City:        resp.City,
		Lat:         resp.Lat,
		Lon:         resp.Lon,
		Timezone:    resp.Timezone,
	}, nil
}

type dnsRecordCreateRequest struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Priority int    `json:"priority"`
	Proxied  bool   `json:"proxied"`
}

type dnsRecordCreateResponse struct {
	Success bool `json:"success"`
	Result  struct {
		ID string `json:"id"`
	} `json:"result"`
}

// CreateDNS creates an A record named "<id>.dns" pointing at target
// (spec.md §4.2, §6).
func (c *CloudflareOps) CreateDNS(ctx context.Context, id, target string, proxied bool) (recordID string, err error) {
	defer func() { recordCall("create_dns", err) }()
	body := dnsRecordCreateRequest{
		Type:     "A",
		Name:     id + ".dns",
		Content:  target,
		TTL:      dnsTTL,
		Priority: dnsPriority,
		Proxied:  proxied,
	}

	var resp dnsRecordCreateResponse
	path := fmt.Sprintf("/zones/%s/dns_records", c.zoneID)
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", fmt.Errorf("%w: creating DNS record for %s: %v", ErrTransient, id, err)
	}
	if !resp.Success {
		return "", fmt.Errorf("%w: DNS provider reported failure creating record for %s", ErrTransient, id)
	}
	return resp.Result.ID, nil
}

// DeleteDNS removes a DNS record by handle. Best-effort: spec.md §4.2 calls
// for the error to be logged and swallowed by the caller during Purge; this
// method itself still reports the error so the caller can decide.
func (c *CloudflareOps) DeleteDNS(ctx context.Context, recordID string) (err error) {
	defer func() { recordCall("delete_dns", err) }()
	path := fmt.Sprintf("/zones/%s/dns_records/%s", c.zoneID, recordID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("%w: deleting DNS record %s: %v", ErrTransient, recordID, err)
	}
	return nil
}

type certificateCreateRequest struct {
	Hostnames         []string `json:"hostnames"`
	RequestedValidity int      `json:"requested_validity"`
	RequestType       string   `json:"request_type"`
	CSR               string   `json:"csr"`
}

type certificateCreateResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Certificate string `json:"certificate"`
		ID          string `json:"id"`
	} `json:"result"`
}

// IssueCert submits csrPEM for "<id>.reseda.app" with the fixed validity and
// request type of spec.md §4.2/§6.
func (c *CloudflareOps) IssueCert(ctx context.Context, id string, csrPEM []byte) (cert, certID string, err error) {
	defer func() { recordCall("issue_cert", err) }()
	// The wire format escapes newlines rather than sending a multi-line body.
	escaped := strings.ReplaceAll(strings.ReplaceAll(string(csrPEM), "\r", ""), "\n", "\\n")

	body := certificateCreateRequest{
		Hostnames:         []string{id + "." + certZoneHostname},
		RequestedValidity: certValidityDays,
		RequestType:       certRequestType,
		CSR:               escaped,
	}

	var resp certificateCreateResponse
	if err := c.do(ctx, http.MethodPost, "/certificates", body, &resp); err != nil {
		return "", "", fmt.Errorf("%w: issuing certificate for %s: %v", ErrTransient, id, err)
	}
	if !resp.Success {
		return "", "", fmt.Errorf("%w: CA reported failure issuing certificate for %s", ErrTransient, id)
	}
	return resp.Result.Certificate, resp.Result.ID, nil
}

// RevokeCert revokes certID. Best-effort, like DeleteDNS.
func (c *CloudflareOps) RevokeCert(ctx context.Context, certID string) (err error) {
	defer func() { recordCall("revoke_cert", err) }()
	path := fmt.Sprintf("/certificates/%s", certID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("%w: revoking certificate %s: %v", ErrTransient, certID, err)
	}
	return nil
}

// ProbeHealth queries https://<id>.dns.reseda.app/health (spec.md §4.2, §6).
func (c *CloudflareOps) ProbeHealth(ctx context.Context, id string) (status NodeStatus, err error) {
	defer func() { recordCall("probe_health", err) }()
	url := fmt.Sprintf("https://%s.dns.%s/health", id, certZoneHostname)
	if err := c.getJSON(ctx, url, &status); err != nil {
		return NodeStatus{}, fmt.Errorf("%w: probing health for %s: %v", ErrTransient, id, err)
	}
	c.logger.Debug("health probe response", "id", id, "status", status.Status, "usage", status.Usage)
	return status, nil
}

// do issues a Cloudflare API request with the configured bearer token.
func (c *CloudflareOps) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cloudflare API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// getJSON issues an unauthenticated GET and decodes a JSON response. Used for
// the geolocation lookup and the node health probe, neither of which takes
// the Cloudflare bearer token.
func (c *CloudflareOps) getJSON(ctx context.Context, url string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
