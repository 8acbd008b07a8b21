package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"daily-news-bot/httpclient"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubOptions configures a GitHubStore.
type GitHubOptions struct {
	Token      string
	Repository string // owner/name
	Dir        string
	Branch     string
	BaseURL    string
	HTTPClient *http.Client
}

// GitHubStore keeps each record as <dir>/<key>.json in a repository through
// the contents API. The version token is the file's blob SHA.
type GitHubStore struct {
	client  *http.Client
	baseURL string
	token   string
	repo    string
	dir     string
	branch  string
}

// NewGitHub validates opts and returns a GitHubStore.
func NewGitHub(opts GitHubOptions) (*GitHubStore, error) {
	if opts.Repository == "" || !strings.Contains(opts.Repository, "/") {
		return nil, fmt.Errorf("github repository must be owner/name, got %q", opts.Repository)
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	s := &GitHubStore{
		client:  opts.HTTPClient,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		repo:    opts.Repository,
		dir:     strings.Trim(opts.Dir, "/"),
		branch:  opts.Branch,
	}
	if s.client == nil {
		s.client = httpclient.New(30 * time.Second)
	}
	if s.baseURL == "" {
		s.baseURL = defaultGitHubAPI
	}
	return s, nil
}

type githubContent struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type githubPutRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type githubPutResponse struct {
	Content githubContent `json:"content"`
}

func (s *GitHubStore) contentsURL(key string) string {
	p := path.Join(s.dir, key+".json")
	return fmt.Sprintf("%s/repos/%s/contents/%s", s.baseURL, s.repo, p)
}

func (s *GitHubStore) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (s *GitHubStore) Get(ctx context.Context, key string) (Record, error) {
	u := s.contentsURL(key)
	if s.branch != "" {
		u += "?ref=" + url.QueryEscape(s.branch)
	}
	req, err := s.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Record{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Record{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Record{}, fmt.Errorf("get %s: %w", key, &httpclient.StatusError{URL: u, Status: resp.StatusCode})
	}

	var content githubContent
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", key, err)
	}
	if content.Encoding != "" && content.Encoding != "base64" {
		return Record{}, fmt.Errorf("get %s: unsupported encoding %q", key, content.Encoding)
	}
	value, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return Record{}, fmt.Errorf("decode %s content: %w", key, err)
	}
	return Record{Value: value, Version: content.SHA}, nil
}

func (s *GitHubStore) Put(ctx context.Context, key string, value []byte, expected string) (string, error) {
	payload := githubPutRequest{
		Message: fmt.Sprintf("Update %s %s", key, time.Now().UTC().Format("2006-01-02")),
		Content: base64.StdEncoding.EncodeToString(value),
		SHA:     expected,
		Branch:  s.branch,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	u := s.contentsURL(key)
	req, err := s.newRequest(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusUnprocessableEntity:
		// 409: sha does not match; 422: sha missing for an existing file.
		return "", ErrVersionConflict
	default:
		return "", fmt.Errorf("put %s: %w", key, &httpclient.StatusError{URL: u, Status: resp.StatusCode})
	}

	var out githubPutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode put response: %w", err)
	}
	return out.Content.SHA, nil
}

func (s *GitHubStore) Close() error {
	return nil
}
