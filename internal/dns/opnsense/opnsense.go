package opnsense

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/dns"
)

const description = "managed by yk-seed-dns"

func init() {
	dns.Register("opnsense", func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

// Provider implements dns.Provider for OPNsense Unbound DNS host overrides.
// Unbound has no zone objects, so the zone id is the domain itself.
type Provider struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	domains    []string
	defaultTTL int
	client     *http.Client
	log        logr.Logger
}

// New creates an OPNsense DNS provider from the given settings map.
// Required settings: base_url, api_key, api_secret (or the legacy login and
// password).
// Optional settings: domains (comma separated allow-list), default_ttl
// (default 300), skip_tls_verify (default false), timeout (default 30s).
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	baseURL := settings["base_url"]
	if baseURL == "" {
		return nil, fmt.Errorf("opnsense: missing required setting 'base_url'")
	}
	apiKey := settings["api_key"]
	if apiKey == "" {
		apiKey = settings["login"]
	}
	if apiKey == "" {
		return nil, fmt.Errorf("opnsense: missing required setting 'api_key'")
	}
	apiSecret := settings["api_secret"]
	if apiSecret == "" {
		apiSecret = settings["password"]
	}
	if apiSecret == "" {
		return nil, fmt.Errorf("opnsense: missing required setting 'api_secret'")
	}

	defaultTTL := dns.DefaultTTL
	if v := settings["default_ttl"]; v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("opnsense: invalid default_ttl %q: %w", v, err)
		}
		defaultTTL = parsed
	}

	timeout := 30 * time.Second
	if v := settings["timeout"]; v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("opnsense: invalid timeout %q: %w", v, err)
		}
		timeout = parsed
	}

	var domains []string
	for _, d := range strings.Split(settings["domains"], ",") {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if v := settings["skip_tls_verify"]; v == "true" {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Provider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		domains:    domains,
		defaultTTL: defaultTTL,
		client:     &http.Client{Transport: transport, Timeout: timeout},
		log:        log,
	}, nil
}

// doRequest builds and executes an HTTP request against the OPNsense API.
func (p *Provider) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("opnsense: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	url := strings.TrimRight(p.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("opnsense: build request: %w", err)
	}

	req.SetBasicAuth(p.apiKey, p.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opnsense: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// call posts (or gets) path and decodes a 200 answer into out. Other statuses
// are returned as *dns.StatusError.
func (p *Provider) call(ctx context.Context, op, method, path string, body, out interface{}) error {
	return dns.WithRetry(ctx, func() error {
		resp, err := p.doRequest(ctx, method, path, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			return &dns.StatusError{Op: "opnsense: " + op, StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("opnsense: decode %s response: %w", op, err)
		}
		return nil
	})
}

// reconfigure tells OPNsense to apply DNS changes.
func (p *Provider) reconfigure(ctx context.Context) error {
	var result struct {
		Status string `json:"status"`
	}
	if err := p.call(ctx, "reconfigure", http.MethodPost, "unbound/service/reconfigure", struct{}{}, &result); err != nil {
		return err
	}
	p.log.V(1).Info("reconfigure completed", "status", result.Status)
	return nil
}

// searchResponse is the shape returned by searchHostOverride.
type searchResponse struct {
	Rows []hostRow `json:"rows"`
}

// hostRow represents a single host override row from the search response.
type hostRow struct {
	UUID     string `json:"uuid"`
	Enabled  string `json:"enabled"`
	Hostname string `json:"hostname"`
	Domain   string `json:"domain"`
	RR       string `json:"rr"`
	Server   string `json:"server"`
}

func (p *Provider) search(ctx context.Context) ([]hostRow, error) {
	var sr searchResponse
	if err := p.call(ctx, "searchHostOverride", http.MethodGet, "unbound/settings/searchHostOverride", nil, &sr); err != nil {
		return nil, err
	}
	return sr.Rows, nil
}

// ResolveZone checks the API is reachable and returns the domain as the zone
// id. With a domains allow-list, other domains wrap dns.ErrZoneNotFound.
func (p *Provider) ResolveZone(ctx context.Context, domain string) (string, error) {
	domain = strings.TrimSuffix(domain, ".")
	if len(p.domains) > 0 {
		allowed := false
		for _, d := range p.domains {
			if dns.SameName(d, domain) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", fmt.Errorf("opnsense: %q: %w", domain, dns.ErrZoneNotFound)
		}
	}
	if _, err := p.search(ctx); err != nil {
		return "", err
	}
	return domain, nil
}

// ListRecords returns the enabled A overrides for fqdn, keyed by uuid.
func (p *Provider) ListRecords(ctx context.Context, zoneID, fqdn string) (map[string]string, error) {
	rows, err := p.search(ctx)
	if err != nil {
		return nil, err
	}

	host, domain := dns.SplitHostname(fqdn)
	records := make(map[string]string)
	for _, row := range rows {
		if row.Enabled != "" && row.Enabled != "1" {
			continue
		}
		if strings.EqualFold(row.Hostname, host) &&
			dns.SameName(row.Domain, domain) &&
			strings.EqualFold(row.RR, "A") {
			records[row.UUID] = row.Server
		}
	}
	return records, nil
}

// buildHostBody creates the JSON body for the addHostOverride call.
func buildHostBody(record dns.Record) map[string]interface{} {
	host, domain := dns.SplitHostname(record.Name)
	return map[string]interface{}{
		"host": map[string]string{
			"enabled":     "1",
			"hostname":    host,
			"domain":      domain,
			"rr":          "A",
			"server":      record.Address,
			"ttl":         strconv.Itoa(record.TTL),
			"description": description,
			"mxprio":      "",
			"mx":          "",
		},
	}
}

// CreateRecord adds a new A host override and applies it.
func (p *Provider) CreateRecord(ctx context.Context, zoneID string, record dns.Record) error {
	if record.TTL == 0 {
		record.TTL = p.defaultTTL
	}
	var result struct {
		Result string `json:"result"`
		UUID   string `json:"uuid"`
	}
	if err := p.call(ctx, "addHostOverride", http.MethodPost, "unbound/settings/addHostOverride", buildHostBody(record), &result); err != nil {
		return err
	}
	if result.Result != "saved" {
		return fmt.Errorf("opnsense: addHostOverride unexpected result: %s", result.Result)
	}

	p.log.V(1).Info("record created", "uuid", result.UUID, "name", record.Name, "address", record.Address)
	return p.reconfigure(ctx)
}

// DeleteRecord removes a host override by uuid and applies the change. An
// override that is already gone is not an error.
func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	var result struct {
		Result string `json:"result"`
	}
	err := p.call(ctx, "delHostOverride", http.MethodPost, fmt.Sprintf("unbound/settings/delHostOverride/%s", recordID), struct{}{}, &result)
	var se *dns.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		p.log.V(1).Info("override already deleted", "uuid", recordID)
		return nil
	}
	if err != nil {
		return err
	}
	switch result.Result {
	case "deleted":
	case "not found":
		p.log.V(1).Info("override already deleted", "uuid", recordID)
		return nil
	default:
		return fmt.Errorf("opnsense: delHostOverride unexpected result: %s", result.Result)
	}

	p.log.V(1).Info("record deleted", "uuid", recordID)
	return p.reconfigure(ctx)
}
