package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	ClinVarProductionURL = "https://submit.ncbi.nlm.nih.gov/api/v1"
	ClinVarTestURL       = "https://submit.ncbi.nlm.nih.gov/apitest/v1"

	clinVarAPIKeyHeader = "SP-API-KEY"
	clinVarErrorBodyMax = 4096
)

// CreatedResult is returned by the registry once a submission was accepted.
type CreatedResult struct {
	SubmissionID string `json:"id"`
}

// RetrievedStatusResult is the registry-side state of a submission.
type RetrievedStatusResult struct {
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`

	// Pending is true while the registry is still processing the submission.
	Pending bool `json:"pending"`

	// Accession is the SCV assigned by ClinVar, if any summary carried one.
	Accession string                     `json:"accession,omitempty"`
	Responses []clinVarActionResponse    `json:"responses,omitempty"`
	Summaries map[string]json.RawMessage `json:"summaries,omitempty"`
}

// RegistryClient talks to the external submission registry.
type RegistryClient interface {
	SubmitData(ctx context.Context, payload datatypes.JSON) (*CreatedResult, error)
	RetrieveStatus(ctx context.Context, submissionID string) (*RetrievedStatusResult, error)
}

// RegistryClientFactory builds a client for one stored API token.
type RegistryClientFactory func(storedToken string) (RegistryClient, error)

// NewClinVarClientFactory returns a factory creating a fresh ClinVarClient per
// call. Stored tokens are opened with cipher first.
func NewClinVarClientFactory(baseURL string, cipher *TokenCipher, httpClient *http.Client) RegistryClientFactory {
	return func(storedToken string) (RegistryClient, error) {
		token, err := cipher.Open(storedToken)
		if err != nil {
			return nil, err
		}
		return NewClinVarClient(baseURL, token, httpClient)
	}
}

// ErrSubmissionRejected is returned when ClinVar finished processing a
// submission without assigning an accession.
var ErrSubmissionRejected = errors.New("clinvar rejected submission")

// RegistryError is returned for non-success responses of the ClinVar API.
type RegistryError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *RegistryError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("clinvar %s failed: status %d body %s", e.Operation, e.StatusCode, e.Body)
}

// ClinVarClient implements RegistryClient for the ClinVar submission API.
type ClinVarClient struct {
	baseURL  string
	apiToken string
	client   *http.Client
}

func NewClinVarClient(baseURL, apiToken string, httpClient *http.Client) (*ClinVarClient, error) {
	if strings.TrimSpace(apiToken) == "" {
		return nil, errors.New("clinvar api token is required")
	}
	if baseURL == "" {
		baseURL = ClinVarTestURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ClinVarClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		client:   httpClient,
	}, nil
}

type clinVarSubmitRequest struct {
	Actions []clinVarSubmitAction `json:"actions"`
}

type clinVarSubmitAction struct {
	Type     string            `json:"type"`
	TargetDB string            `json:"targetDb"`
	Data     clinVarSubmitData `json:"data"`
}

type clinVarSubmitData struct {
	Content json.RawMessage `json:"content"`
}

// SubmitData posts payload, a ClinVar submission container, to the registry.
func (c *ClinVarClient) SubmitData(ctx context.Context, payload datatypes.JSON) (result *CreatedResult, err error) {
	started := time.Now()
	defer func() { observeClinVarRequest("submit", started, err) }()

	if len(payload) == 0 {
		return nil, ErrMissingRequestPayload
	}
	body, err := json.Marshal(clinVarSubmitRequest{
		Actions: []clinVarSubmitAction{{
			Type:     "AddData",
			TargetDB: "clinvar",
			Data:     clinVarSubmitData{Content: json.RawMessage(payload)},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, c.baseURL+"/submissions/", body, true)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, &RegistryError{Operation: "submit", StatusCode: status, Body: truncateBody(respBody)}
	}

	var created CreatedResult
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	if created.SubmissionID == "" {
		return nil, errors.New("clinvar submit response carries no submission id")
	}
	return &created, nil
}

type clinVarActionsResponse struct {
	Actions []clinVarAction `json:"actions"`
}

type clinVarAction struct {
	ID        string                  `json:"id"`
	TargetDB  string                  `json:"targetDb"`
	Status    string                  `json:"status"`
	Updated   string                  `json:"updated"`
	Responses []clinVarActionResponse `json:"responses"`
}

type clinVarActionResponse struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message,omitempty"`
	Files   []struct {
		URL string `json:"url"`
	} `json:"files"`
}

type clinVarSummary struct {
	BatchProcessingStatus string `json:"batchProcessingStatus"`
	TotalErrors           int    `json:"totalErrors"`
	Submissions           []struct {
		ProcessingStatus string `json:"processingStatus"`
		Identifiers      struct {
			ClinvarAccession string `json:"clinvarAccession"`
			ClinvarLocalKey  string `json:"clinvarLocalKey"`
		} `json:"identifiers"`
	} `json:"submissions"`
}

// RetrieveStatus fetches the action status of submissionID. Once processing
// finished the summary files are downloaded as well.
func (c *ClinVarClient) RetrieveStatus(ctx context.Context, submissionID string) (result *RetrievedStatusResult, err error) {
	started := time.Now()
	defer func() { observeClinVarRequest("retrieve", started, err) }()

	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return nil, errors.New("submission id is required")
	}

	endpoint := fmt.Sprintf("%s/submissions/%s/actions/", c.baseURL, url.PathEscape(strings.ToLower(submissionID)))
	status, respBody, err := c.do(ctx, http.MethodGet, endpoint, nil, true)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &RegistryError{Operation: "retrieve", StatusCode: status, Body: truncateBody(respBody)}
	}

	var decoded clinVarActionsResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if len(decoded.Actions) == 0 {
		return nil, fmt.Errorf("clinvar returned no actions for submission %s", submissionID)
	}

	action := decoded.Actions[0]
	result = &RetrievedStatusResult{
		SubmissionID: submissionID,
		Status:       action.Status,
		Pending:      isPendingActionStatus(action.Status),
		Responses:    action.Responses,
	}
	if result.Pending {
		return result, nil
	}

	result.Summaries = make(map[string]json.RawMessage)
	summaryErrors, batchFailed := 0, false
	for _, response := range action.Responses {
		for _, file := range response.Files {
			if file.URL == "" {
				continue
			}
			raw, summary, err := c.fetchSummary(ctx, file.URL)
			if err != nil {
				return nil, err
			}
			result.Summaries[file.URL] = raw
			summaryErrors += summary.TotalErrors
			if strings.EqualFold(summary.BatchProcessingStatus, "error") {
				batchFailed = true
			}
			if result.Accession == "" {
				result.Accession = summaryAccession(summary)
			}
		}
	}

	switch {
	case strings.EqualFold(strings.TrimSpace(action.Status), "error") || batchFailed || summaryErrors > 0:
		return nil, fmt.Errorf("%w: submission %s action status %s, %d error(s) in summary",
			ErrSubmissionRejected, submissionID, action.Status, summaryErrors)
	case result.Accession == "":
		return nil, fmt.Errorf("%w: submission %s action status %s, no accession assigned",
			ErrSubmissionRejected, submissionID, action.Status)
	}
	return result, nil
}

// fetchSummary downloads a summary file. The URL comes from the registry
// response, so the API key only goes along to the registry host itself.
func (c *ClinVarClient) fetchSummary(ctx context.Context, fileURL string) (json.RawMessage, *clinVarSummary, error) {
	status, body, err := c.do(ctx, http.MethodGet, fileURL, nil, c.isRegistryHost(fileURL))
	if err != nil {
		return nil, nil, err
	}
	if status != http.StatusOK {
		return nil, nil, &RegistryError{Operation: "summary", StatusCode: status, Body: truncateBody(body)}
	}
	var summary clinVarSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, nil, fmt.Errorf("decode summary %s: %w", fileURL, err)
	}
	return json.RawMessage(body), &summary, nil
}

func (c *ClinVarClient) isRegistryHost(rawURL string) bool {
	target, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(target.Scheme, base.Scheme) && strings.EqualFold(target.Host, base.Host)
}

func (c *ClinVarClient) do(ctx context.Context, method, endpoint string, body []byte, withKey bool) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if withKey {
		req.Header.Set(clinVarAPIKeyHeader, c.apiToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read clinvar response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// isPendingActionStatus is the ClinVar-specific "still processing" signal.
func isPendingActionStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "submitted", "processing":
		return true
	}
	return false
}

func summaryAccession(summary *clinVarSummary) string {
	if summary == nil {
		return ""
	}
	for _, sub := range summary.Submissions {
		if acc := strings.TrimSpace(sub.Identifiers.ClinvarAccession); acc != "" {
			return acc
		}
	}
	return ""
}

func truncateBody(body []byte) string {
	if len(body) > clinVarErrorBodyMax {
		body = body[:clinVarErrorBodyMax]
	}
	return string(body)
}
