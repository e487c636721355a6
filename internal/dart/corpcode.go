package dart

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// CorpCode maps one issuer identifier to its listed stock code.
type CorpCode struct {
	CorpCode  string
	CorpName  string
	StockCode string
}

// DownloadCorpCodes fetches and unpacks the corporate identifier dump.
// Only issuers with a 6-digit stock code are returned; the rest are
// unlisted entities the catalogue has no use for.
func (c *Client) DownloadCorpCodes(ctx context.Context) ([]CorpCode, error) {
	q := url.Values{}
	q.Set("crtfc_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/corpCode.xml?%s", c.baseURL, q.Encode()), nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build corp code request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "corp code request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("corp code request returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "could not read corp code archive")
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, errors.Wrap(err, "corp code response is not a zip archive")
	}

	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "could not open %s in corp code archive", f.Name)
		}
		codes, err := parseCorpCodeXML(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		return codes, nil
	}
	return nil, errors.New("corp code archive contains no xml file")
}

func parseCorpCodeXML(r io.Reader) ([]CorpCode, error) {
	var doc struct {
		List []struct {
			CorpCode  string `xml:"corp_code"`
			CorpName  string `xml:"corp_name"`
			StockCode string `xml:"stock_code"`
		} `xml:"list"`
	}
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "could not parse corp code xml")
	}

	var codes []CorpCode
	for _, entry := range doc.List {
		stockCode := strings.TrimSpace(entry.StockCode)
		if len(stockCode) != 6 {
			continue
		}
		codes = append(codes, CorpCode{
			CorpCode:  strings.TrimSpace(entry.CorpCode),
			CorpName:  strings.TrimSpace(entry.CorpName),
			StockCode: stockCode,
		})
	}
	return codes, nil
}
