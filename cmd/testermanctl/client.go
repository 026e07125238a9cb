package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/testerman-project/testerman-core/internal/job"
	"github.com/testerman-project/testerman-core/internal/wsapi"
)

// apiClient is a thin HTTP client over the Ws façade (internal/wsapi).
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(data))
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func (c *apiClient) submit(req wsapi.SubmitRequest) (wsapi.SubmitResponse, error) {
	var resp wsapi.SubmitResponse
	err := c.do(http.MethodPost, "/api/v1/jobs", req, &resp)
	return resp, err
}

func (c *apiClient) jobInfo(id int64) (wsapi.JobInfo, error) {
	var info wsapi.JobInfo
	err := c.do(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%d", id), nil, &info)
	return info, err
}

func (c *apiClient) jobDetails(id int64) (wsapi.JobDetails, error) {
	var details wsapi.JobDetails
	err := c.do(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%d/details", id), nil, &details)
	return details, err
}

func (c *apiClient) jobLog(id int64) ([]byte, error) {
	resp, err := c.http.Get(c.baseURL + fmt.Sprintf("/api/v1/jobs/%d/log", id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET /api/v1/jobs/%d/log: %s: %s", id, resp.Status, bytes.TrimSpace(data))
	}
	return data, nil
}

func (c *apiClient) sendSignal(id int64, sig job.Signal) error {
	return c.do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%d/signal", id), wsapi.SignalRequest{Signal: sig}, nil)
}

func (c *apiClient) reschedule(id int64, at time.Time) error {
	return c.do(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%d/reschedule", id), wsapi.RescheduleRequest{At: at}, nil)
}

func (c *apiClient) purge(olderThan time.Duration) (wsapi.PurgeResponse, error) {
	var resp wsapi.PurgeResponse
	err := c.do(http.MethodPost, "/api/v1/jobs/purge", wsapi.PurgeRequest{OlderThanSeconds: int64(olderThan.Seconds())}, &resp)
	return resp, err
}
