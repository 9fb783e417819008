// Package runnerclient is a thin HTTP facade a runner process uses to
// talk to its local agent: fetch the assigned task, save a result, add a
// discovered URL, report an error, or upload a screenshot. It holds no
// state and retries nothing, the same shape as agent_server.py's local
// Flask routes it calls.
package runnerclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/pymada-go/pymada/pkg/models"
)

// Client talks to the agent listening on baseURL (typically
// http://127.0.0.1:<AGENT_PORT>).
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client for the given agent base URL.
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{}}
}

func (c *Client) postJSON(path string, body interface{}) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	return resp, nil
}

// GetTask fetches the task this runner has been assigned, or nil if
// none.
func (c *Client) GetTask() (*models.UrlTask, error) {
	resp, err := c.http.Get(c.baseURL + "/get_task")
	if err != nil {
		return nil, fmt.Errorf("get_task: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Task *models.UrlTask `json:"task"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode get_task response: %w", err)
	}
	return body.Task, nil
}

// SaveResult reports a task's result back to the agent.
func (c *Client) SaveResult(result interface{}) error {
	resp, err := c.postJSON("/save_results", map[string]interface{}{"result": result})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("save_results: status %d", resp.StatusCode)
	}
	return nil
}

// AddURL reports a newly discovered URL for the master to queue.
func (c *Client) AddURL(task *models.UrlTask) error {
	resp, err := c.postJSON("/add_url", task)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("add_url: status %d", resp.StatusCode)
	}
	return nil
}

// LogError reports an error message for the master's error log.
func (c *Client) LogError(message string) error {
	resp, err := c.postJSON("/log_error", map[string]string{"message": message})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("log_error: status %d", resp.StatusCode)
	}
	return nil
}

// SaveScreenshot uploads an image for the given task to the local agent's
// /save_screenshot route, which relays it to the master — the same
// single-local-HTTP-call shape as GetTask/SaveResult/AddURL/LogError.
func (c *Client) SaveScreenshot(taskID, fileName string, image io.Reader) error {
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

	resp, err := c.http.Post(c.baseURL+"/save_screenshot", w.FormDataContentType(), &buf)
	if err != nil {
		return fmt.Errorf("post save_screenshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("save_screenshot: status %d", resp.StatusCode)
	}
	return nil
}
