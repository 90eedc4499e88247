package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// APIProbeConfig describes one external API whose credential and rate-limit
// headroom are probed.
type APIProbeConfig struct {
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`            // lightweight authenticated endpoint
	Token         string `yaml:"token"`          // bearer token
	MinHeadroom   int    `yaml:"min_headroom"`   // remaining calls below this is a warning
	HeaderLimit   string `yaml:"header_limit"`   // defaults to X-RateLimit-Limit
	HeaderRemains string `yaml:"header_remains"` // defaults to X-RateLimit-Remaining
}

// APIProbe checks an external API's credential validity and rate-limit
// headroom with a single authenticated request.
type APIProbe struct {
	Config APIProbeConfig
	Client *http.Client
}

// NewAPIProbe creates a probe for one external API.
func NewAPIProbe(cfg APIProbeConfig) *APIProbe {
	if cfg.HeaderRemains == "" {
		cfg.HeaderRemains = "X-RateLimit-Remaining"
	}
	if cfg.HeaderLimit == "" {
		cfg.HeaderLimit = "X-RateLimit-Limit"
	}
	return &APIProbe{
		Config: cfg,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *APIProbe) Name() string { return "api_" + p.Config.Name }

func (p *APIProbe) Check(ctx context.Context) Result {
	start := time.Now()
	res := Result{Probe: p.Name()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Config.URL, nil)
	if err != nil {
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("bad probe request: %v", err)
		return res
	}
	if p.Config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Config.Token)
	}

	resp, err := p.Client.Do(req)
	res.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("%s unreachable: %v", p.Config.Name, err)
		return res
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("%s credential rejected (http %d)", p.Config.Name, resp.StatusCode)
		return res
	case resp.StatusCode == http.StatusTooManyRequests:
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("%s is rate limiting us", p.Config.Name)
		return res
	case resp.StatusCode >= 500:
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("%s returned http %d", p.Config.Name, resp.StatusCode)
		return res
	}

	res.Status = StatusHealthy
	if remaining := resp.Header.Get(p.Config.HeaderRemains); remaining != "" {
		res.Details = map[string]any{"rate_limit_remaining": remaining}
		if limit := resp.Header.Get(p.Config.HeaderLimit); limit != "" {
			res.Details["rate_limit"] = limit
		}
		if n, err := strconv.Atoi(remaining); err == nil && n < p.Config.MinHeadroom {
			res.Status = StatusWarning
			res.Message = fmt.Sprintf("%s rate-limit headroom low: %d left", p.Config.Name, n)
		}
	}
	return res
}

// CompletenessProbe reads data-completeness ratios from the record-store
// collaborator and warns when enrichment coverage drops.
type CompletenessProbe struct {
	URL           string
	Token         string
	WarnBelow     float64
	CriticalBelow float64
	Client        *http.Client
}

// NewCompletenessProbe creates the data-completeness probe.
func NewCompletenessProbe(url, token string, warnBelow, criticalBelow float64) *CompletenessProbe {
	return &CompletenessProbe{
		URL:           url,
		Token:         token,
		WarnBelow:     warnBelow,
		CriticalBelow: criticalBelow,
		Client:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *CompletenessProbe) Name() string { return "data_completeness" }

func (p *CompletenessProbe) Check(ctx context.Context) Result {
	start := time.Now()
	res := Result{Probe: p.Name()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("bad probe request: %v", err)
		return res
	}
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}

	resp, err := p.Client.Do(req)
	res.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("completeness endpoint unreachable: %v", err)
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("completeness endpoint returned http %d", resp.StatusCode)
		return res
	}

	var payload struct {
		Ratios map[string]float64 `json:"ratios"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("invalid completeness payload: %v", err)
		return res
	}

	res.Status = StatusHealthy
	res.Details = map[string]any{}
	worstField, worst := "", 1.0
	for field, ratio := range payload.Ratios {
		res.Details[field] = ratio
		if ratio < worst {
			worst, worstField = ratio, field
		}
	}
	switch {
	case worstField != "" && worst < p.CriticalBelow:
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("%s completeness %.1f%%", worstField, worst*100)
	case worstField != "" && worst < p.WarnBelow:
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("%s completeness %.1f%%", worstField, worst*100)
	}
	return res
}
