package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"courier/internal/domain"
)

const (
	messagePath    = "/v1/messages/"
	attachmentPath = "/v1/attachments/"

	// AgentHeader carries the client identification string.
	AgentHeader = "X-Signal-Agent"

	DefaultTimeout = 30 * time.Second
)

// HTTP talks to the service over HTTPS.
type HTTP struct {
	Base      string
	HTTP      *http.Client
	Creds     domain.CredentialsProvider
	UserAgent string
	Timeout   time.Duration // per API request; downloads are bounded by ctx only
	Logger    *slog.Logger
}

// NewHTTP builds a client whose TLS roots come from trust.
func NewHTTP(base string, trust domain.TrustStore, creds domain.CredentialsProvider, userAgent string) *HTTP {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = trust.TLSConfig()
	return &HTTP{
		Base:      strings.TrimRight(base, "/"),
		HTTP:      &http.Client{Transport: transport},
		Creds:     creds,
		UserAgent: userAgent,
		Timeout:   DefaultTimeout,
		Logger:    slog.Default(),
	}
}

// FetchMessages returns the full queued backlog in server order.
func (c *HTTP) FetchMessages(ctx context.Context) ([]domain.EnvelopeEntity, error) {
	var out domain.EnvelopeEntityList
	if err := c.getJSON(ctx, messagePath, &out); err != nil {
		return nil, err
	}
	if out.Messages == nil {
		return []domain.EnvelopeEntity{}, nil
	}
	return out.Messages, nil
}

// AcknowledgeMessage deletes one envelope from the queue. A 404 means the
// envelope was already acknowledged and is reported as success.
func (c *HTTP) AcknowledgeMessage(ctx context.Context, source string, timestamp uint64) error {
	path := messagePath + url.PathEscape(source) + "/" + strconv.FormatUint(timestamp, 10)
	ctx, cancel := c.apiContext(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodDelete, c.Base+path, true)
	if err != nil {
		return &domain.TransportError{Op: "delete", URL: path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		c.logger().Debug("envelope already acknowledged", "source", source, "timestamp", timestamp)
		return nil
	}
	return checkStatus("delete", path, resp)
}

// DownloadAttachment resolves the attachment's location and streams the
// ciphertext into destination. Bytes are written to a temporary file in the
// same directory and renamed into place only once the body is complete.
func (c *HTTP) DownloadAttachment(
	ctx context.Context,
	relay string,
	id uint64,
	destination string,
	listener domain.ProgressListener,
) error {
	path := attachmentPath + strconv.FormatUint(id, 10)
	if relay != "" {
		path += "?relay=" + url.QueryEscape(relay)
	}
	var loc domain.AttachmentLocation
	if err := c.getJSON(ctx, path, &loc); err != nil {
		return err
	}
	if loc.Location == "" {
		return &domain.TransportError{Op: "get", URL: path, Err: domain.ErrBadResponse}
	}
	location := loc.Location
	if strings.HasPrefix(location, "/") {
		location = c.Base + location
	}
	return c.downloadTo(ctx, location, destination, listener)
}

func (c *HTTP) downloadTo(ctx context.Context, location, destination string, listener domain.ProgressListener) error {
	resp, err := c.do(ctx, http.MethodGet, location, false)
	if err != nil {
		return &domain.TransportError{Op: "download", URL: location, Err: err}
	}
	defer resp.Body.Close()
	if err := checkStatus("download", location, resp); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(destination), filepath.Base(destination)+".part-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	// Best-effort cleanup if anything fails before rename.
	defer func() { _ = os.Remove(tmp) }()

	w := &progressWriter{w: f, total: resp.ContentLength, listener: listener}
	if _, err := io.Copy(w, resp.Body); err != nil {
		_ = f.Close()
		return &domain.TransportError{Op: "download", URL: location, Status: resp.StatusCode, Err: err}
	}
	if resp.ContentLength >= 0 && w.written != resp.ContentLength {
		_ = f.Close()
		return &domain.TransportError{
			Op: "download", URL: location, Status: resp.StatusCode,
			Err: fmt.Errorf("short body: %d of %d bytes: %w", w.written, resp.ContentLength, io.ErrUnexpectedEOF),
		}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, destination)
}

func (c *HTTP) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := c.apiContext(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, c.Base+path, true)
	if err != nil {
		return &domain.TransportError{Op: "get", URL: path, Err: err}
	}
	defer resp.Body.Close()
	if err := checkStatus("get", path, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.TransportError{
			Op: "get", URL: path, Status: resp.StatusCode,
			Err: fmt.Errorf("%w: %v", domain.ErrBadResponse, err),
		}
	}
	return nil
}

func (c *HTTP) do(ctx context.Context, method, u string, authenticated bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	if authenticated {
		req.SetBasicAuth(Login(c.Creds), c.Creds.Password())
	}
	if c.UserAgent != "" {
		req.Header.Set(AgentHeader, c.UserAgent)
	}
	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.logger().Debug("relay request failed", "method", method, "path", req.URL.Path, "err", err)
		return nil, err
	}
	c.logger().Debug("relay request",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return resp, nil
}

func (c *HTTP) apiContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}

func (c *HTTP) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Login returns the basic-auth user name: the account, suffixed with
// ".<device>" for anything but the primary device.
func Login(creds domain.CredentialsProvider) string {
	if d := creds.DeviceID(); d != 0 && d != domain.DefaultDeviceID {
		return creds.User() + "." + strconv.FormatUint(uint64(d), 10)
	}
	return creds.User()
}

func checkStatus(op, u string, resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	var err error
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		err = domain.ErrUnauthorized
	case http.StatusNotFound:
		err = domain.ErrNotFound
	case http.StatusRequestEntityTooLarge, http.StatusTooManyRequests:
		err = domain.ErrRateLimited
	default:
		if resp.StatusCode >= 500 {
			err = domain.ErrServer
		} else {
			err = fmt.Errorf("unexpected status %s", resp.Status)
		}
	}
	return &domain.TransportError{Op: op, URL: u, Status: resp.StatusCode, Err: err}
}

type progressWriter struct {
	w        io.Writer
	total    int64
	written  int64
	listener domain.ProgressListener
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.listener != nil && n > 0 {
		p.listener(p.total, p.written)
	}
	return n, err
}

var _ domain.RelayClient = (*HTTP)(nil)
