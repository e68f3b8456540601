package pricer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/carteira/internal/domain"
)

const (
	AwesomeAPIBaseURL  = "https://economia.awesomeapi.com.br"
	defaultHTTPTimeout = 5 * time.Second
	maxResponseBytes   = 1 << 20
)

// AwesomeAPISource reads the latest bid of every asset quoted against fiat
// from the AwesomeAPI currency endpoint.
type AwesomeAPISource struct {
	baseURL    string
	fiat       string
	assets     []string
	httpClient *http.Client
	now        clock
}

// AwesomeAPIOption customises an AwesomeAPISource.
type AwesomeAPIOption func(*AwesomeAPISource)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) AwesomeAPIOption {
	return func(s *AwesomeAPISource) { s.httpClient = c }
}

// WithBaseURL points the source at another host.
func WithBaseURL(u string) AwesomeAPIOption {
	return func(s *AwesomeAPISource) { s.baseURL = strings.TrimRight(u, "/") }
}

func NewAwesomeAPISource(fiat string, assets []string, opts ...AwesomeAPIOption) *AwesomeAPISource {
	s := &AwesomeAPISource{
		baseURL:    AwesomeAPIBaseURL,
		fiat:       domain.NormalizeAsset(fiat),
		assets:     normalizeAssets(fiat, assets),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type awesomeQuote struct {
	Code    string `json:"code"`
	CodeIn  string `json:"codein"`
	Bid     string `json:"bid"`
	Ask     string `json:"ask"`
	Updated string `json:"create_date"`
}

// URL returns the endpoint queried for the configured assets.
func (s *AwesomeAPISource) URL() string {
	pairs := make([]string, 0, len(s.assets))
	for _, a := range s.assets {
		pairs = append(pairs, a+"-"+s.fiat)
	}
	return fmt.Sprintf("%s/last/%s", s.baseURL, strings.Join(pairs, ","))
}

// FetchQuotes performs one GET and returns the bids keyed by asset code.
func (s *AwesomeAPISource) FetchQuotes(ctx context.Context) (domain.Quotes, error) {
	if len(s.assets) == 0 {
		return domain.Quotes{}, errors.New("awesomeapi: no assets configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(), nil)
	if err != nil {
		return domain.Quotes{}, errors.Wrap(err, "awesomeapi: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.Quotes{}, errors.Wrap(err, "awesomeapi: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.Quotes{}, errors.Wrap(err, "awesomeapi: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quotes{}, fmt.Errorf("awesomeapi: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]awesomeQuote
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.Quotes{}, errors.Wrap(err, "awesomeapi: decode response")
	}

	snap := newSnapshot(s.fiat, s.assets, s.now)
	for key, q := range payload {
		asset := q.Code
		if asset == "" {
			asset = strings.TrimSuffix(strings.ToUpper(key), s.fiat)
		}
		if q.CodeIn != "" && domain.NormalizeAsset(q.CodeIn) != s.fiat {
			continue
		}
		if err := snap.add(asset, q.Bid); err != nil {
			return domain.Quotes{}, errors.Wrap(err, "awesomeapi")
		}
	}

	if len(snap.quotes.Prices) == 0 {
		return domain.Quotes{}, errors.New("awesomeapi: response contained no usable prices")
	}
	return snap.quotes, nil
}
