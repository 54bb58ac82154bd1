package congress

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"billscan/internal/domain"
	"billscan/internal/retry"
)

const (
	formattedTextType = "Formatted Text"
	maxTextBytes      = 200 * 1024
)

var whitespaceExpr = regexp.MustCompile(`[ \t]+`)

// fetchBillText resolves the newest formatted text version of a bill and
// extracts plain text from its HTML. Bills without any text version yet
// return an empty string, not an error.
func (c *Client) fetchBillText(ctx context.Context, key domain.BillKey) (string, error) {
	var payload struct {
		TextVersions []struct {
			Date    string `json:"date"`
			Type    string `json:"type"`
			Formats []struct {
				Type string `json:"type"`
				URL  string `json:"url"`
			} `json:"formats"`
		} `json:"textVersions"`
	}
	endpoint := c.itemURL("bill", key.Congress, key.BillType, key.BillNumber, "text")
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.getJSON(ctx, endpoint, &payload)
	})
	if err != nil {
		return "", fmt.Errorf("list text versions: %w", err)
	}

	textURL := ""
	latestDate := ""
	for _, version := range payload.TextVersions {
		for _, format := range version.Formats {
			if format.Type != formattedTextType || format.URL == "" {
				continue
			}
			if textURL == "" || version.Date > latestDate {
				textURL = format.URL
				latestDate = version.Date
			}
		}
	}
	if textURL == "" {
		return "", nil
	}

	var text string
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		extracted, fetchErr := c.fetchDocumentText(ctx, textURL)
		if fetchErr != nil {
			return fetchErr
		}
		text = extracted
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch formatted text: %w", err)
	}
	return text, nil
}

func (c *Client) fetchDocumentText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return "", retry.Permanent(fmt.Errorf("text document %s: %w", resp.Status, domain.ErrNotFound))
		}
		return "", fmt.Errorf("text document returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("parse document: %w", err))
	}

	return normalizeText(doc.Text()), nil
}

func normalizeText(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(whitespaceExpr.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	text := strings.Join(kept, "\n")
	if len(text) > maxTextBytes {
		text = text[:maxTextBytes]
	}
	return text
}
