package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/pymada-go/pymada/pkg/models"
)

// Retry policy for requests that fail at the transport level (the master
// is unreachable or the attempt times out). An HTTP error status is not
// retried.
const (
	masterRetries      = 10
	masterRetryBackoff = 3 * time.Second
)

// masterClient relays registration, task fetch/save, and error reports to
// the master, mirroring agent_server.py's _send_request: a request that
// fails to connect is retried up to masterRetries times, masterRetryBackoff
// apart, each attempt bounded by the client's 60s timeout.
type masterClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func newMasterClient(baseURL, token string) *masterClient {
	return &masterClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (m *masterClient) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("pymada_token_auth", m.token)
	}

	resp, err := m.client.Do(req)
	for attempt := 0; err != nil && attempt < masterRetries; attempt++ {
		time.Sleep(masterRetryBackoff)
		resp, err = m.client.Do(req)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to contact master: %w", err)
	}
	return resp, nil
}

// RegisterAgent POSTs this agent's hostname+URL to /register_agent/.
func (m *masterClient) RegisterAgent(ctx context.Context, hostname, agentURL string) (*models.Agent, error) {
	resp, err := m.do(ctx, http.MethodPost, "/register_agent/", map[string]string{
		"hostname":  hostname,
		"agent_url": agentURL,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var a models.Agent
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode register_agent response: %w", err)
	}
	return &a, nil
}

// GetRunner fetches the runner assigned to runnerNum.
func (m *masterClient) GetRunner(ctx context.Context, runnerNum string) (*models.Runner, error) {
	resp, err := m.do(ctx, http.MethodGet, "/runner/"+runnerNum+"/", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	var r models.Runner
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode get_runner response: %w", err)
	}
	return &r, nil
}

// SaveTaskResult PUTs the task's result back to the master, the Go side
// of save_task_results.
func (m *masterClient) SaveTaskResult(ctx context.Context, taskID string, result *string) error {
	resp, err := m.do(ctx, http.MethodPut, "/urls/"+taskID+"/", map[string]interface{}{
		"task_result": result,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// AddURL relays a new task to the master on behalf of a runner.
func (m *masterClient) AddURL(ctx context.Context, task *models.UrlTask) error {
	resp, err := m.do(ctx, http.MethodPost, "/urls/", []*models.UrlTask{task})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// LogError relays an error report to the master.
func (m *masterClient) LogError(ctx context.Context, e *models.ErrorLog) error {
	resp, err := m.do(ctx, http.MethodPost, "/log_error/", e)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// SaveScreenshot relays a runner-reported screenshot upload to the
// master's /screenshots/ endpoint, the handler behind the agent's
// /save_screenshot route.
func (m *masterClient) SaveScreenshot(ctx context.Context, taskID, fileName string, image io.Reader) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("task", taskID); err != nil {
		return fmt.Errorf("write task field: %w", err)
	}
	part, err := w.CreateFormFile("image", fileName)
	if err != nil {
		return fmt.Errorf("create image field: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return fmt.Errorf("copy image data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/screenshots/", &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if m.token != "" {
		req.Header.Set("pymada_token_auth", m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("post screenshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("save screenshot: status %d", resp.StatusCode)
	}
	return nil
}
