package syncer

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrRemoteConflict means the remote blob's version token changed
	// between the read and the conditional write: another writer pushed
	// concurrently. The caller must re-pull and re-apply; the engine never
	// merges two store files.
	ErrRemoteConflict = errors.New("remote store changed since version token was read")

	// ErrRemoteMissing means the canonical blob does not exist at the
	// remote location. Fatal for a pull (there is no fallback store),
	// routine for a first push (the blob gets created).
	ErrRemoteMissing = errors.New("remote store does not exist")

	// ErrMissingToken is surfaced before any network call when a push is
	// requested without credentials.
	ErrMissingToken = errors.New("github token is not configured")
)

// RemoteStore replicates the local store file against a blob hosted in a
// GitHub repository, using the blob sha as the optimistic-concurrency
// version token. The whole file travels on every push.
type RemoteStore struct {
	api    *resty.Client
	raw    *resty.Client
	owner  string
	repo   string
	branch string
	path   string
	token  string
	logger *zap.Logger
}

type RemoteConfig struct {
	APIBase string
	RawBase string
	Owner   string
	Repo    string
	Branch  string
	Path    string
	Token   string
	Timeout time.Duration
}

func NewRemoteStore(cfg RemoteConfig, logger *zap.Logger) *RemoteStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	api := resty.New().
		SetBaseURL(cfg.APIBase).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/vnd.github+json")
	if cfg.Token != "" {
		api.SetAuthToken(cfg.Token)
	}
	raw := resty.New().
		SetBaseURL(cfg.RawBase).
		SetTimeout(cfg.Timeout)
	return &RemoteStore{
		api:    api,
		raw:    raw,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		branch: cfg.Branch,
		path:   cfg.Path,
		token:  cfg.Token,
		logger: logger,
	}
}

type contentsResponse struct {
	SHA     string `json:"sha"`
	Content string `json:"content"`
}

// Pull downloads the canonical blob and replaces localPath with it. Any
// existing local store is overwritten, so callers gate this on the
// no-local-copy state or an explicit force-refresh. Failure is hard: with
// no remote copy there is nothing to fall back to.
func (r *RemoteStore) Pull(localPath string) error {
	url := fmt.Sprintf("/%s/%s/%s/%s", r.owner, r.repo, r.branch, r.path)
	resp, err := r.raw.R().Get(url)
	if err != nil {
		return fmt.Errorf("pull remote store: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrRemoteMissing
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("pull remote store: unexpected status %d", resp.StatusCode())
	}

	// Write to a sibling temp file first so a torn transfer never leaves a
	// corrupt store behind.
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".pull-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(resp.Body()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, localPath); err != nil {
		os.Remove(tmpName)
		return err
	}
	r.logger.Info("pulled remote store",
		zap.String("path", localPath),
		zap.Int("bytes", len(resp.Body())),
	)
	return nil
}

// currentSHA reads the remote blob's version token. Empty sha with nil
// error means the blob does not exist yet.
func (r *RemoteStore) currentSHA() (string, error) {
	url := fmt.Sprintf("/repos/%s/%s/contents/%s", r.owner, r.repo, r.path)
	resp, err := r.api.R().SetQueryParam("ref", r.branch).Get(url)
	if err != nil {
		return "", fmt.Errorf("read remote version token: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("read remote version token: unexpected status %d", resp.StatusCode())
	}
	var body contentsResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("read remote version token: %w", err)
	}
	return body.SHA, nil
}

// Push uploads the whole local store file, conditioned on the version token
// read just before the write. A token mismatch at write time surfaces as
// ErrRemoteConflict, never as a silent overwrite.
func (r *RemoteStore) Push(localPath string, message string) error {
	if r.token == "" {
		return ErrMissingToken
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read local store: %w", err)
	}

	sha, err := r.currentSHA()
	if err != nil {
		return err
	}

	payload := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  r.branch,
	}
	if sha != "" {
		payload["sha"] = sha
	}

	url := fmt.Sprintf("/repos/%s/%s/contents/%s", r.owner, r.repo, r.path)
	resp, err := r.api.R().SetBody(payload).Put(url)
	if err != nil {
		return fmt.Errorf("push remote store: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		r.logger.Info("pushed store to remote",
			zap.String("repo", r.owner+"/"+r.repo),
			zap.String("path", r.path),
			zap.Int("bytes", len(content)),
			zap.Bool("created", resp.StatusCode() == http.StatusCreated),
		)
		return nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		r.logger.Error("remote store conflict",
			zap.String("repo", r.owner+"/"+r.repo),
			zap.String("path", r.path),
			zap.String("token", sha),
		)
		return ErrRemoteConflict
	default:
		return fmt.Errorf("push remote store: unexpected status %d", resp.StatusCode())
	}
}
