// ABOUTME: Minimal Twilio REST client for placing and ending calls
// ABOUTME: Form-encoded POSTs with basic auth and Twilio error decoding

package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAPIBaseURL is Twilio's REST API root.
const DefaultAPIBaseURL = "https://api.twilio.com/2010-04-01"

// Client calls the Twilio REST API.
type Client struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
}

// ClientConfig configures a Client.
type ClientConfig struct {
	AccountSID string
	AuthToken  string
	// From is the caller ID used when CallParams.From is empty.
	From       string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a REST client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twilio account_sid and auth_token are required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

// Call is the subset of the call resource this service reads.
type Call struct {
	SID       string `json:"sid"`
	To        string `json:"to"`
	From      string `json:"from"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
}

// CallParams describe an outbound call.
type CallParams struct {
	To             string
	From           string
	URL            string // voice webhook the call starts on
	StatusCallback string
}

// APIError is an error response from Twilio.
type APIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio error %d: %s", e.Code, e.Message)
}

// CreateCall places an outbound call.
func (c *Client) CreateCall(ctx context.Context, p CallParams) (*Call, error) {
	if p.To == "" {
		return nil, errors.New("to is required")
	}
	from := p.From
	if from == "" {
		from = c.from
	}
	if from == "" {
		return nil, errors.New("from is required; set twilio.phone_number")
	}

	data := url.Values{}
	data.Set("To", p.To)
	data.Set("From", from)
	if p.URL != "" {
		data.Set("Url", p.URL)
	}
	if p.StatusCallback != "" {
		data.Set("StatusCallback", p.StatusCallback)
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			data.Add("StatusCallbackEvent", ev)
		}
	}

	var call Call
	if err := c.post(ctx, c.endpoint("Calls.json"), data, &call); err != nil {
		return nil, fmt.Errorf("creating call: %w", err)
	}
	return &call, nil
}

// Hangup ends an in-progress call.
func (c *Client) Hangup(ctx context.Context, callSID string) (*Call, error) {
	data := url.Values{}
	data.Set("Status", "completed")

	var call Call
	if err := c.post(ctx, c.endpoint("Calls/"+url.PathEscape(callSID)+".json"), data, &call); err != nil {
		return nil, fmt.Errorf("hanging up call %s: %w", callSID, err)
	}
	return &call, nil
}

func (c *Client) endpoint(resource string) string {
	return fmt.Sprintf("%s/Accounts/%s/%s", c.baseURL, c.accountSID, resource)
}

func (c *Client) post(ctx context.Context, endpoint string, data url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("twilio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return &apiErr
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parsing twilio response: %w", err)
		}
	}
	return nil
}
