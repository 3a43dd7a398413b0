package deepl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Client talks to the DeepL v2 API with a fixed auth key.
// Thread-safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given API base URL (e.g.
// https://api-free.deepl.com/v2) and auth key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 1 * time.Minute,
		},
	}
}

// Usage returns the consumed and allowed character counts for the key.
func (c *Client) Usage(ctx context.Context) (used, limit int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/usage", nil)
	if err != nil {
		return 0, 0, err
	}
	c.authorize(req)

	body, err := c.do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("usage request: %w", err)
	}

	var usage usageResponse
	if err := json.Unmarshal(body, &usage); err != nil {
		return 0, 0, fmt.Errorf("parse usage response: %w", err)
	}
	return usage.CharacterCount, usage.CharacterLimit, nil
}

// Remaining returns how many translatable characters are left on the key.
func (c *Client) Remaining(ctx context.Context) (int64, error) {
	used, limit, err := c.Usage(ctx)
	if err != nil {
		return 0, err
	}
	return limit - used, nil
}

// Upload submits a document for translation and returns the handles
// required by every subsequent call for this document.
func (c *Client) Upload(ctx context.Context, filePath, targetLang string) (documentID, documentKey string, err error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", "", fmt.Errorf("open document: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return "", "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", "", fmt.Errorf("read document: %w", err)
	}
	if err := writer.WriteField("target_lang", targetLang); err != nil {
		return "", "", err
	}
	if err := writer.Close(); err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/document", &buf)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	body, err := c.do(req)
	if err != nil {
		return "", "", fmt.Errorf("document upload: %w", err)
	}

	var upload uploadResponse
	if err := json.Unmarshal(body, &upload); err != nil {
		return "", "", fmt.Errorf("parse upload response: %w", err)
	}
	if upload.DocumentID == "" || upload.DocumentKey == "" {
		return "", "", fmt.Errorf("invalid response from document upload: %s", string(body))
	}
	return upload.DocumentID, upload.DocumentKey, nil
}

// Status queries the translation state of an uploaded document. The
// provider reports "translating", "done" or "error"; anything that is not
// terminal counts as still processing.
func (c *Client) Status(ctx context.Context, documentID, documentKey string) (TaskState, string, error) {
	body, err := c.postDocumentKey(ctx, fmt.Sprintf("%s/document/%s", c.baseURL, documentID), documentKey)
	if err != nil {
		return StateProcessing, "", fmt.Errorf("status check: %w", err)
	}

	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return StateProcessing, "", fmt.Errorf("parse status response: %w", err)
	}

	switch status.Status {
	case "done":
		return StateDone, status.Message, nil
	case "error":
		return StateError, status.Message, nil
	default:
		return StateProcessing, status.Message, nil
	}
}

// Result downloads the translated document bytes.
func (c *Client) Result(ctx context.Context, documentID, documentKey string) ([]byte, error) {
	body, err := c.postDocumentKey(ctx, fmt.Sprintf("%s/document/%s/result", c.baseURL, documentID), documentKey)
	if err != nil {
		return nil, fmt.Errorf("result download: %w", err)
	}
	return body, nil
}

func (c *Client) postDocumentKey(ctx context.Context, url, documentKey string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"document_key": documentKey})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.do(req)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.apiKey)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
