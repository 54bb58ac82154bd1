package congress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"billscan/internal/config"
	"billscan/internal/domain"
	"billscan/internal/ports"
	"billscan/internal/retry"
)

const (
	defaultBaseURL  = "https://api.congress.gov/v3"
	defaultPageSize = 250
)

// Client talks to the congress.gov v3 API. All operations are read-only;
// each remote call is wrapped individually by the retry policy.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	retry    retry.Config
	pageSize int
	logger   *slog.Logger
}

var _ ports.LegislativeSource = (*Client)(nil)

// NewClient wires an HTTP client; a nil httpClient gets a 20s-timeout default.
func NewClient(cfg config.SourceConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		http:     httpClient,
		retry:    retry.Config{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay.Std()},
		pageSize: defaultPageSize,
		logger:   logger,
	}
}

type wireLatestAction struct {
	ActionDate string `json:"actionDate"`
	Text       string `json:"text"`
}

type wireBill struct {
	Congress    json.Number      `json:"congress"`
	Type        string           `json:"type"`
	Number      json.Number      `json:"number"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	PolicyArea  struct {
		Name string `json:"name"`
	} `json:"policyArea"`
	OriginChamber  string             `json:"originChamber"`
	IntroducedDate string             `json:"introducedDate"`
	LatestAction   wireLatestAction   `json:"latestAction"`
	UpdateDate     string             `json:"updateDate"`
	URL            string             `json:"url"`
	Actions        []wireLatestAction `json:"actions"`
}

type wireAmendment struct {
	Congress      json.Number      `json:"congress"`
	Type          string           `json:"type"`
	Number        json.Number      `json:"number"`
	Description   string           `json:"description"`
	Purpose       string           `json:"purpose"`
	Chamber       string           `json:"chamber"`
	SubmittedDate string           `json:"submittedDate"`
	LatestAction  wireLatestAction `json:"latestAction"`
	UpdateDate    string           `json:"updateDate"`
	URL           string           `json:"url"`
}

// ListRecentBills pages through the listing endpoint until limit summaries
// are collected or the source runs out. An empty result is valid.
func (c *Client) ListRecentBills(ctx context.Context, congress int, since time.Time, limit int) ([]domain.BillSummary, error) {
	if limit <= 0 {
		return nil, nil
	}

	summaries := make([]domain.BillSummary, 0, limit)
	offset := 0
	for len(summaries) < limit {
		pageSize := c.pageSize
		if remaining := limit - len(summaries); remaining < pageSize {
			pageSize = remaining
		}

		query := url.Values{}
		query.Set("format", "json")
		query.Set("sort", "updateDate desc")
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("offset", strconv.Itoa(offset))
		if !since.IsZero() {
			query.Set("fromDateTime", since.UTC().Format("2006-01-02T15:04:05Z"))
		}

		var page struct {
			Bills      []wireBill `json:"bills"`
			Pagination struct {
				Count int    `json:"count"`
				Next  string `json:"next"`
			} `json:"pagination"`
		}
		endpoint := fmt.Sprintf("%s/bill/%d?%s", c.baseURL, congress, query.Encode())
		err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
			return c.getJSON(ctx, endpoint, &page)
		})
		if err != nil {
			return nil, fmt.Errorf("list recent bills: %w", err)
		}

		for _, wb := range page.Bills {
			summary, err := wb.toSummary()
			if err != nil {
				c.logger.Warn("skipping malformed bill summary", "error", err)
				continue
			}
			summaries = append(summaries, summary)
			if len(summaries) == limit {
				break
			}
		}

		if len(page.Bills) == 0 || page.Pagination.Next == "" {
			break
		}
		offset += len(page.Bills)
	}

	return summaries, nil
}

// GetBillDetail fetches one bill and, best effort, its latest formatted
// text. Text-fetch failures are logged and leave Bill.Text empty.
func (c *Client) GetBillDetail(ctx context.Context, key domain.BillKey) (*domain.Bill, error) {
	var payload struct {
		Bill wireBill `json:"bill"`
	}
	endpoint := c.itemURL("bill", key.Congress, key.BillType, key.BillNumber, "")
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.getJSON(ctx, endpoint, &payload)
	})
	if err != nil {
		return nil, fmt.Errorf("get bill %s: %w", key, err)
	}

	bill, err := payload.Bill.toBill(key)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("bill %s: %w", key, err))
	}

	if text, textErr := c.fetchBillText(ctx, key); textErr != nil {
		c.logger.Warn("bill text unavailable", "bill", key.String(), "error", textErr)
	} else {
		bill.Text = text
	}

	return bill, nil
}

// ListAmendments fetches a bill's amendments. A missing parent surfaces as
// domain.ErrNotFound so the caller can tell "no amendments" from "bill
// vanished".
func (c *Client) ListAmendments(ctx context.Context, key domain.BillKey) ([]domain.AmendmentSummary, error) {
	var payload struct {
		Amendments []wireAmendment `json:"amendments"`
	}
	endpoint := c.itemURL("bill", key.Congress, key.BillType, key.BillNumber, "amendments")
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.getJSON(ctx, endpoint, &payload)
	})
	if err != nil {
		return nil, fmt.Errorf("list amendments of %s: %w", key, err)
	}

	summaries := make([]domain.AmendmentSummary, 0, len(payload.Amendments))
	for _, wa := range payload.Amendments {
		summary, err := wa.toSummary()
		if err != nil {
			c.logger.Warn("skipping malformed amendment summary", "bill", key.String(), "error", err)
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetAmendmentDetail fetches one amendment.
func (c *Client) GetAmendmentDetail(ctx context.Context, key domain.AmendmentKey) (*domain.Amendment, error) {
	var payload struct {
		Amendment wireAmendment `json:"amendment"`
	}
	endpoint := c.itemURL("amendment", key.Congress, key.AmendmentType, key.AmendmentNumber, "")
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.getJSON(ctx, endpoint, &payload)
	})
	if err != nil {
		return nil, fmt.Errorf("get amendment %s: %w", key, err)
	}

	amendment, err := payload.Amendment.toAmendment(key)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("amendment %s: %w", key, err))
	}
	return amendment, nil
}

func (c *Client) itemURL(collection string, congress int, kind string, number int, suffix string) string {
	endpoint := fmt.Sprintf("%s/%s/%d/%s/%d", c.baseURL, collection, congress, strings.ToLower(kind), number)
	if suffix != "" {
		endpoint += "/" + suffix
	}
	return endpoint + "?format=json"
}

// getJSON performs one GET and maps the response onto the error taxonomy:
// 404 permanent NotFound, 429 and 5xx transient, other 4xx permanent,
// undecodable body permanent.
func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return retry.Permanent(fmt.Errorf("congress API %s: %w", resp.Status, domain.ErrNotFound))
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("congress API rate limited: %s", resp.Status)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("congress API %s", resp.Status)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return retry.Permanent(fmt.Errorf("congress API %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (w wireBill) toSummary() (domain.BillSummary, error) {
	key, err := billKey(w.Congress, w.Type, w.Number)
	if err != nil {
		return domain.BillSummary{}, err
	}
	return domain.BillSummary{
		Key:          key,
		Title:        w.Title,
		LatestAction: domain.LatestAction{Date: w.LatestAction.ActionDate, Text: w.LatestAction.Text},
		UpdateDate:   w.UpdateDate,
		URL:          w.URL,
	}, nil
}

func (w wireBill) toBill(key domain.BillKey) (*domain.Bill, error) {
	parsed, err := billKey(w.Congress, w.Type, w.Number)
	if err != nil {
		return nil, err
	}
	if parsed != key {
		return nil, fmt.Errorf("payload key %s does not match requested %s", parsed, key)
	}

	description := w.Description
	if description == "" {
		description = w.PolicyArea.Name
	}

	actions := make([]string, 0, len(w.Actions))
	for _, action := range w.Actions {
		actions = append(actions, action.Text)
	}

	return &domain.Bill{
		Key:            key,
		Title:          w.Title,
		Description:    description,
		OriginChamber:  w.OriginChamber,
		IntroducedDate: w.IntroducedDate,
		LatestAction:   domain.LatestAction{Date: w.LatestAction.ActionDate, Text: w.LatestAction.Text},
		UpdateDate:     w.UpdateDate,
		URL:            w.URL,
		Actions:        actions,
	}, nil
}

func (w wireAmendment) toSummary() (domain.AmendmentSummary, error) {
	key, err := amendmentKey(w.Congress, w.Type, w.Number)
	if err != nil {
		return domain.AmendmentSummary{}, err
	}
	return domain.AmendmentSummary{
		Key:          key,
		Description:  w.Description,
		LatestAction: domain.LatestAction{Date: w.LatestAction.ActionDate, Text: w.LatestAction.Text},
		UpdateDate:   w.UpdateDate,
		URL:          w.URL,
	}, nil
}

func (w wireAmendment) toAmendment(key domain.AmendmentKey) (*domain.Amendment, error) {
	parsed, err := amendmentKey(w.Congress, w.Type, w.Number)
	if err != nil {
		return nil, err
	}
	if parsed != key {
		return nil, fmt.Errorf("payload key %s does not match requested %s", parsed, key)
	}
	return &domain.Amendment{
		Key:           key,
		Description:   w.Description,
		Purpose:       w.Purpose,
		Chamber:       w.Chamber,
		SubmittedDate: w.SubmittedDate,
		LatestAction:  domain.LatestAction{Date: w.LatestAction.ActionDate, Text: w.LatestAction.Text},
		UpdateDate:    w.UpdateDate,
		URL:           w.URL,
	}, nil
}

func billKey(congress json.Number, kind string, number json.Number) (domain.BillKey, error) {
	c, n, err := keyNumbers(congress, number)
	if err != nil {
		return domain.BillKey{}, err
	}
	key := domain.BillKey{Congress: c, BillType: kind, BillNumber: n}
	if !key.Valid() {
		return domain.BillKey{}, fmt.Errorf("incomplete bill key %q/%q/%q", congress, kind, number)
	}
	return key, nil
}

func amendmentKey(congress json.Number, kind string, number json.Number) (domain.AmendmentKey, error) {
	c, n, err := keyNumbers(congress, number)
	if err != nil {
		return domain.AmendmentKey{}, err
	}
	key := domain.AmendmentKey{Congress: c, AmendmentType: kind, AmendmentNumber: n}
	if !key.Valid() {
		return domain.AmendmentKey{}, fmt.Errorf("incomplete amendment key %q/%q/%q", congress, kind, number)
	}
	return key, nil
}

func keyNumbers(congress, number json.Number) (int, int, error) {
	c, err := strconv.Atoi(congress.String())
	if err != nil {
		return 0, 0, fmt.Errorf("parse congress %q: %w", congress, err)
	}
	n, err := strconv.Atoi(number.String())
	if err != nil {
		return 0, 0, fmt.Errorf("parse number %q: %w", number, err)
	}
	return c, n, nil
}
