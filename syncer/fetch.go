package syncer

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// FetchStatus classifies the outcome of one period download. Absence is a
// routine result (future periods are simply not published yet) and must be
// distinguishable from transport failure so the caller can branch on kind
// instead of inspecting errors.
type FetchStatus int

const (
	FetchData FetchStatus = iota
	FetchAbsent
	FetchFailed
)

func (s FetchStatus) String() string {
	switch s {
	case FetchData:
		return "data"
	case FetchAbsent:
		return "absent"
	case FetchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type FetchResult struct {
	Status FetchStatus
	Data   []byte
	Err    error
}

// Fetcher downloads one period's workbook export from the upstream source.
type Fetcher struct {
	client   *resty.Client
	resource string
	ext      string
	logger   *zap.Logger
}

func NewFetcher(baseURL string, resource string, ext string, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &Fetcher{client: client, resource: resource, ext: ext, logger: logger}
}

// periodPath builds the deterministic export path, e.g. "25/rasff-2025-03.xlsx".
func (f *Fetcher) periodPath(p Period) string {
	return fmt.Sprintf("/%02d/%s-%d-%02d.%s", p.Year%100, f.resource, p.Year, p.Week, f.ext)
}

// Fetch never fails the run: transport and server errors come back as
// FetchFailed, not-found-class responses as FetchAbsent.
func (f *Fetcher) Fetch(p Period) FetchResult {
	path := f.periodPath(p)
	resp, err := f.client.R().Get(path)
	if err != nil {
		f.logger.Warn("period fetch failed",
			zap.String("period", p.String()),
			zap.String("path", path),
			zap.Error(err),
		)
		return FetchResult{Status: FetchFailed, Err: err}
	}

	code := resp.StatusCode()
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		f.logger.Info("period not published",
			zap.String("period", p.String()),
			zap.Int("status_code", code),
		)
		return FetchResult{Status: FetchAbsent}
	case code >= 200 && code < 300:
		return FetchResult{Status: FetchData, Data: resp.Body()}
	default:
		err := fmt.Errorf("unexpected status %d for %s", code, path)
		f.logger.Warn("period fetch failed",
			zap.String("period", p.String()),
			zap.Int("status_code", code),
		)
		return FetchResult{Status: FetchFailed, Err: err}
	}
}
