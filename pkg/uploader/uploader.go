// Package uploader transfers file content from an external source into a
// repository file attachment.
//
// The repository client only hands a job off; the transfer itself runs
// out of band and reports completion asynchronously on the returned
// channel. Internal state is never observable from the outside.
package uploader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/edms-forge/starstore/pkg/starstore"
)

// Client is the repository surface the uploader needs.
type Client interface {
	WriteFile(fileID, name string, content []byte) error
	FileStatus(fileID string) (string, error)
}

// Report is the terminal outcome of one upload job.
type Report struct {
	File   starstore.FileInfo
	Status string
	Err    error
}

// Uploader hands off an external-source transfer into an attachment.
type Uploader interface {
	Upload(ctx context.Context, client Client, file starstore.FileInfo, sourceURL string) <-chan Report
}

// FetchUploaderConfig configures a FetchUploader.
type FetchUploaderConfig struct {
	// HTTPClient fetches http(s) sources. Default: a client with a
	// 60 second timeout.
	HTTPClient *http.Client

	// Fs resolves file: sources. Default: the OS filesystem.
	Fs afero.Fs

	// MaxElapsed bounds the whole fetch-retry phase. Default: 2 minutes.
	MaxElapsed time.Duration

	// PollInterval paces the status polling after the write.
	// Default: 500ms.
	PollInterval time.Duration

	// Logger (optional).
	Logger hclog.Logger
}

// FetchUploader fetches a source URL, writes the content into the
// attachment, then polls the upload status until it is terminal.
type FetchUploader struct {
	httpClient   *http.Client
	fs           afero.Fs
	maxElapsed   time.Duration
	pollInterval time.Duration
	logger       hclog.Logger
}

var _ Uploader = (*FetchUploader)(nil)

// NewFetchUploader creates a FetchUploader, applying defaults.
func NewFetchUploader(cfg FetchUploaderConfig) *FetchUploader {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 2 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &FetchUploader{
		httpClient:   cfg.HTTPClient,
		fs:           cfg.Fs,
		maxElapsed:   cfg.MaxElapsed,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger.Named("uploader"),
	}
}

// Upload starts the transfer and returns immediately. Exactly one Report is
// delivered on the channel, then it is closed.
func (u *FetchUploader) Upload(ctx context.Context, client Client, file starstore.FileInfo, sourceURL string) <-chan Report {
	reports := make(chan Report, 1)
	go func() {
		defer close(reports)
		status, err := u.run(ctx, client, file, sourceURL)
		if err != nil {
			u.logger.Warn("upload failed", "file", file.ID, "source", sourceURL, "error", err)
		}
		reports <- Report{File: file, Status: status, Err: err}
	}()
	return reports
}

func (u *FetchUploader) run(ctx context.Context, client Client, file starstore.FileInfo, sourceURL string) (string, error) {
	content, err := u.fetch(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", sourceURL, err)
	}

	u.logger.Debug("source fetched", "file", file.ID, "source", sourceURL, "bytes", len(content))

	name := file.Name
	if name == "" {
		name = path.Base(sourceURL)
	}
	if err := client.WriteFile(file.ID, name, content); err != nil {
		return "", fmt.Errorf("write attachment %s: %w", file.ID, err)
	}

	return u.awaitStatus(ctx, client, file.ID)
}

// fetch loads the source content. http(s) fetches are retried with
// exponential backoff; local reads are not.
func (u *FetchUploader) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url: %w", err)
	}

	switch parsed.Scheme {
	case "http", "https":
		return u.fetchHTTP(ctx, sourceURL)
	case "file":
		return afero.ReadFile(u.fs, parsed.Path)
	case "":
		return afero.ReadFile(u.fs, sourceURL)
	default:
		return nil, fmt.Errorf("unsupported source scheme %q", parsed.Scheme)
	}
}

func (u *FetchUploader) fetchHTTP(ctx context.Context, sourceURL string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = u.maxElapsed

	var content []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := u.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("source returned status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("source returned status %d", resp.StatusCode)
		}

		content, err = io.ReadAll(resp.Body)
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return content, nil
}

// awaitStatus polls the attachment status until it stops changing.
func (u *FetchUploader) awaitStatus(ctx context.Context, client Client, fileID string) (string, error) {
	var status string
	operation := func() error {
		var err error
		status, err = client.FileStatus(fileID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !starstore.UploadStatusTerminal(status) {
			return fmt.Errorf("upload still %s", status)
		}
		return nil
	}

	maxPolls := uint64(u.maxElapsed / u.pollInterval)
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(u.pollInterval), maxPolls)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return status, fmt.Errorf("status poll for %s: %w", fileID, err)
	}
	if status == starstore.UploadStatusError {
		return status, fmt.Errorf("repository reported upload failure for %s", fileID)
	}
	return status, nil
}
