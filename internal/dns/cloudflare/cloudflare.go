package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/dns"
)

const (
	defaultBaseURL = "https://api.cloudflare.com/client/v4"
	requestTimeout = 30 * time.Second
	pageSize       = 100

	// Cloudflare error codes for a record that no longer exists.
	codeRecordNotFound = 81044
	codeRecordGone     = 81043

	// Cloudflare error codes for a create that matches an existing record.
	codeRecordExists    = 81057
	codeRecordIdentical = 81058
)

func init() {
	dns.Register("cloudflare", func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

// Provider implements dns.Provider for the Cloudflare v4 API.
type Provider struct {
	baseURL  string
	email    string
	apiKey   string
	apiToken string
	client   *http.Client
	log      logr.Logger
}

// New creates a Cloudflare DNS provider from the given settings map.
// Credentials are either api_token, or email together with api_key (the
// legacy login and password settings stand in for email and api_key).
// Optional settings: base_url.
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	p := &Provider{
		baseURL:  settings["base_url"],
		email:    firstNonEmpty(settings["email"], settings["login"]),
		apiKey:   firstNonEmpty(settings["api_key"], settings["password"]),
		apiToken: settings["api_token"],
		client:   &http.Client{Timeout: requestTimeout},
		log:      log,
	}
	if p.baseURL == "" {
		p.baseURL = defaultBaseURL
	}
	if p.apiToken == "" {
		if p.email == "" {
			return nil, fmt.Errorf("cloudflare: missing required setting 'api_token' or 'email'")
		}
		if p.apiKey == "" {
			return nil, fmt.Errorf("cloudflare: missing required setting 'api_key'")
		}
	}
	return p, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// envelope is the common shape of every Cloudflare API response.
type envelope struct {
	Success    bool            `json:"success"`
	Errors     []apiError      `json:"errors"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *resultInfo     `json:"result_info,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type resultInfo struct {
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

type zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type record struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// APIError carries the error list of an unsuccessful Cloudflare response.
type APIError struct {
	Op     string
	Errors []apiError
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("cloudflare: %s: unknown error", e.Op)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, ae := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("[%d] %s", ae.Code, ae.Message))
	}
	return fmt.Sprintf("cloudflare: %s: %s", e.Op, strings.Join(msgs, ", "))
}

func (e *APIError) hasCode(codes ...int) bool {
	for _, ae := range e.Errors {
		for _, c := range codes {
			if ae.Code == c {
				return true
			}
		}
	}
	return false
}

// do executes one API call and returns the decoded envelope. Non-2xx answers
// come back as *dns.StatusError wrapping the API error text.
func (p *Provider) do(ctx context.Context, op, method, path string, query url.Values, body interface{}) (*envelope, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("cloudflare: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	u := strings.TrimRight(p.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: build request: %w", err)
	}

	if p.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiToken)
	} else {
		req.Header.Set("X-Auth-Email", p.email)
		req.Header.Set("X-Auth-Key", p.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: read %s response: %w", op, err)
	}
	p.log.V(1).Info("api response", "op", op, "status", resp.StatusCode, "body", string(data))

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &dns.StatusError{Op: "cloudflare: " + op, StatusCode: resp.StatusCode, Body: string(data)}
		if decodeErr == nil && len(env.Errors) > 0 {
			ae := &APIError{Op: op, Errors: env.Errors}
			se.Body = ae.Error()
			se.Err = ae
		}
		return &env, se
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("cloudflare: decode %s response: %w", op, decodeErr)
	}
	if !env.Success {
		return &env, &APIError{Op: op, Errors: env.Errors}
	}
	return &env, nil
}

// ResolveZone returns the zone id for domain, or an error wrapping
// dns.ErrZoneNotFound when the account has no such zone.
func (p *Provider) ResolveZone(ctx context.Context, domain string) (string, error) {
	var zones []zone
	err := dns.WithRetry(ctx, func() error {
		env, err := p.do(ctx, "list zones", http.MethodGet, "zones", url.Values{"name": {domain}}, nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(env.Result, &zones)
	})
	if err != nil {
		return "", err
	}
	for _, z := range zones {
		if dns.SameName(z.Name, domain) {
			p.log.V(1).Info("resolved zone", "domain", domain, "zoneID", z.ID)
			return z.ID, nil
		}
	}
	return "", fmt.Errorf("cloudflare: %q: %w", domain, dns.ErrZoneNotFound)
}

// ListRecords returns the A records named exactly fqdn, keyed by record id.
func (p *Provider) ListRecords(ctx context.Context, zoneID, fqdn string) (map[string]string, error) {
	records := make(map[string]string)
	for page := 1; ; page++ {
		q := url.Values{
			"type":     {"A"},
			"name":     {fqdn},
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(pageSize)},
		}
		var (
			batch []record
			info  *resultInfo
		)
		err := dns.WithRetry(ctx, func() error {
			env, err := p.do(ctx, "list records", http.MethodGet, fmt.Sprintf("zones/%s/dns_records", zoneID), q, nil)
			if err != nil {
				return err
			}
			info = env.ResultInfo
			return json.Unmarshal(env.Result, &batch)
		})
		if err != nil {
			return nil, err
		}
		for _, r := range batch {
			if r.Type == "A" && dns.SameName(r.Name, fqdn) {
				records[r.ID] = r.Content
			}
		}
		if info == nil || page >= info.TotalPages {
			break
		}
	}
	return records, nil
}

// DeleteRecord removes a record by id. A record that is already gone is not
// an error.
func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	err := dns.WithRetry(ctx, func() error {
		_, err := p.do(ctx, "delete record", http.MethodDelete, fmt.Sprintf("zones/%s/dns_records/%s", zoneID, recordID), nil, nil)
		return err
	})
	if err == nil {
		return nil
	}
	var se *dns.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		p.log.V(1).Info("record already deleted", "recordID", recordID)
		return nil
	}
	var ae *APIError
	if errors.As(err, &ae) && ae.hasCode(codeRecordNotFound, codeRecordGone) {
		p.log.V(1).Info("record already deleted", "recordID", recordID)
		return nil
	}
	return err
}

// CreateRecord adds an unproxied A record. A create that collides with an
// identical record counts as done: a retried POST may follow one that was
// committed before its response was lost.
func (p *Provider) CreateRecord(ctx context.Context, zoneID string, rec dns.Record) error {
	ttl := rec.TTL
	if ttl == 0 {
		ttl = dns.DefaultTTL
	}
	body := map[string]interface{}{
		"type":    "A",
		"name":    rec.Name,
		"content": rec.Address,
		"ttl":     ttl,
		"proxied": rec.Proxied,
	}
	var created record
	err := dns.WithRetry(ctx, func() error {
		env, err := p.do(ctx, "create record", http.MethodPost, fmt.Sprintf("zones/%s/dns_records", zoneID), nil, body)
		if err != nil {
			return err
		}
		return json.Unmarshal(env.Result, &created)
	})
	var ae *APIError
	if errors.As(err, &ae) && ae.hasCode(codeRecordExists, codeRecordIdentical) {
		p.log.V(1).Info("record already exists", "name", rec.Name, "address", rec.Address)
		return nil
	}
	if err != nil {
		return err
	}
	p.log.V(1).Info("record created", "recordID", created.ID, "name", rec.Name, "address", rec.Address)
	return nil
}
