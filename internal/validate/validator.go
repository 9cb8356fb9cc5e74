package validate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/proofpulse/internal/model"
	"github.com/ppiankov/proofpulse/internal/util"
)

const checkMaxRetries = 3

// checkSleepFunc is the sleep function used between retries (injectable for tests)
var checkSleepFunc = time.Sleep

// LinkStatus is the outcome of checking one source link
type LinkStatus struct {
	URL        string
	StatusCode int
	Dead       bool
	Err        error
}

// Validator checks cited source links concurrently
type Validator struct {
	httpClient *http.Client
	maxWorkers int
	userAgent  string
	authority  *AuthorityClassifier
}

// NewValidator creates a validator. Outbound requests share the fetch proxy
// settings and user agent from httpCfg.
func NewValidator(cfg model.SourceCheckConfig, httpCfg model.HTTPConfig) *Validator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Validator{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		maxWorkers: workers,
		userAgent:  httpCfg.UserAgent,
		authority:  NewAuthorityClassifier(cfg.PrimaryDomains, cfg.SecondaryDomains),
	}
}

// CheckSources drops sources whose links are dead, tags the survivors with
// their authority tier and orders them primary first. The returned statuses
// are index-aligned with the input.
func (v *Validator) CheckSources(ctx context.Context, sources []model.Source) ([]model.Source, []LinkStatus) {
	statuses := make([]LinkStatus, len(sources))
	if len(sources) == 0 {
		return []model.Source{}, statuses
	}

	g := new(errgroup.Group)
	g.SetLimit(v.maxWorkers)
	for i, s := range sources {
		g.Go(func() error {
			statuses[i] = v.checkWithRetry(ctx, s.URL)
			return nil
		})
	}
	_ = g.Wait()

	live := make([]model.Source, 0, len(sources))
	for i, s := range sources {
		if statuses[i].Dead {
			continue
		}
		s.Authority = v.authority.Classify(s.URL)
		live = append(live, s)
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].Authority.Rank() < live[j].Authority.Rank()
	})
	return live, statuses
}

// checkLink issues a HEAD request, falling back to GET for servers that
// reject HEAD
func (v *Validator) checkLink(ctx context.Context, rawURL string) LinkStatus {
	status := v.request(ctx, http.MethodHead, rawURL)
	if status.StatusCode == http.StatusMethodNotAllowed || status.StatusCode == http.StatusNotImplemented {
		status = v.request(ctx, http.MethodGet, rawURL)
	}
	return status
}

func (v *Validator) request(ctx context.Context, method, rawURL string) LinkStatus {
	status := LinkStatus{URL: rawURL}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		status.Err = fmt.Errorf("create request: %w", err)
		status.Dead = true
		return status
	}
	if v.userAgent != "" {
		req.Header.Set("User-Agent", v.userAgent)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		status.Err = fmt.Errorf("request failed: %w", err)
		// A cancelled check says nothing about the link
		status.Dead = ctx.Err() == nil
		return status
	}
	defer func() { _ = resp.Body.Close() }()
	if method == http.MethodGet {
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
	}

	status.StatusCode = resp.StatusCode
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		status.Dead = true
	}
	return status
}

// checkWithRetry retries transient failures with exponential backoff
func (v *Validator) checkWithRetry(ctx context.Context, rawURL string) LinkStatus {
	var status LinkStatus
	for attempt := 0; attempt < checkMaxRetries; attempt++ {
		status = v.checkLink(ctx, rawURL)
		if ctx.Err() != nil || !isRetryable(status) {
			return status
		}
		if attempt < checkMaxRetries-1 {
			checkSleepFunc(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}
	return status
}

// isRetryable reports whether status looks like a transient failure
func isRetryable(status LinkStatus) bool {
	if status.StatusCode >= 500 || status.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if status.Err == nil {
		return false
	}
	var urlErr interface{ Timeout() bool }
	if errors.As(status.Err, &urlErr) && urlErr.Timeout() {
		return true
	}
	s := strings.ToLower(status.Err.Error())
	return strings.Contains(s, "connection refused") || strings.Contains(s, "connection reset")
}
