// Package dart talks to the corporate disclosure open-data service: the
// per-issuer disclosure list and the zip-wrapped corporate identifier
// dump the catalogue refresh consumes.
package dart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultBaseURL = "https://opendart.fss.or.kr"
	viewerURL      = "https://dart.fss.or.kr/dsaf001/main.do?rcpNo="

	statusOK     = "000"
	statusNoData = "013"
)

// Disclosure is one published filing.
type Disclosure struct {
	RceptNo    string
	CorpName   string
	ReportName string
	RceptDate  string // YYYYMMDD
	RceptTime  string // HHMMSS, may be empty
}

// CursorKey is the composite watermark key; lexicographic comparison of
// these keys orders filings chronologically.
func (d Disclosure) CursorKey() string {
	return d.RceptDate + d.RceptTime
}

// ViewerURL is the public deep link to the filing.
func (d Disclosure) ViewerURL() string {
	return viewerURL + d.RceptNo
}

// Client queries the disclosure service.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ListDisclosures fetches the recent filings of one issuer. A "no data"
// status is an empty list, not an error.
func (c *Client) ListDisclosures(ctx context.Context, corpCode string) ([]Disclosure, error) {
	q := url.Values{}
	q.Set("crtfc_key", c.apiKey)
	q.Set("corp_code", corpCode)
	q.Set("page_count", "100")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/list.json?%s", c.baseURL, q.Encode()), nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build disclosure list request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "disclosure list request failed for issuer %s", corpCode)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("disclosure list request for issuer %s returned HTTP %d", corpCode, resp.StatusCode)
	}

	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		List    []struct {
			RceptNo    string `json:"rcept_no"`
			CorpName   string `json:"corp_name"`
			ReportName string `json:"report_nm"`
			RceptDate  string `json:"rcept_dt"`
			RceptTime  string `json:"rcept_tm"`
		} `json:"list"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrapf(err, "could not parse disclosure list for issuer %s", corpCode)
	}

	switch payload.Status {
	case statusOK:
	case statusNoData:
		return nil, nil
	default:
		return nil, errors.Errorf("disclosure API status %s for issuer %s: %s", payload.Status, corpCode, payload.Message)
	}

	items := make([]Disclosure, 0, len(payload.List))
	for _, it := range payload.List {
		if it.RceptDate == "" {
			return nil, errors.Errorf("disclosure item %s for issuer %s has no receipt date", it.RceptNo, corpCode)
		}
		items = append(items, Disclosure{
			RceptNo:    it.RceptNo,
			CorpName:   it.CorpName,
			ReportName: it.ReportName,
			RceptDate:  it.RceptDate,
			RceptTime:  it.RceptTime,
		})
	}
	return items, nil
}
