package simbridge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prologic/simbridgefs/internal/httpx"
)

const (
	// PortSetting is the settings key holding the SimBridge port.
	PortSetting = "CONFIG_SIMBRIDGE_PORT"
	// DefaultPort is used when PortSetting is unset or empty.
	DefaultPort = "8380"
	// Host is where SimBridge listens.
	Host = "localhost"
)

// SettingsReader is the part of the settings store the client needs.
type SettingsReader interface {
	Get(ctx context.Context, key, defaultValue string) string
}

// Option configures a Client.
type Option func(*options)

type options struct {
	http          []httpx.Option
	reportTimeout time.Duration
}

// WithHTTPClient sets the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.http = append(o.http, httpx.WithHTTPClient(hc)) }
}

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.http = append(o.http, httpx.WithTimeout(d)) }
}

// WithMetrics records every request in m.
func WithMetrics(m *httpx.Metrics) Option {
	return func(o *options) { o.http = append(o.http, httpx.WithMetrics(m)) }
}

// WithReportTimeout bounds the background position reports. It defaults to
// the request timeout.
func WithReportTimeout(d time.Duration) Option {
	return func(o *options) { o.reportTimeout = d }
}

// Client groups the SimBridge service APIs.
type Client struct {
	http     *httpx.Client
	terrain  *Terrain
	coroutes *CompanyRoutes
	viewer   *Viewer
}

// BaseURL builds the SimBridge URL from the port setting.
func BaseURL(ctx context.Context, settings SettingsReader) string {
	return fmt.Sprintf("http://%s:%s", Host, settings.Get(ctx, PortSetting, DefaultPort))
}

// NewFromDataStore resolves the base URL from settings once and returns a
// Client bound to it. Later changes to the port setting need a new Client.
func NewFromDataStore(ctx context.Context, settings SettingsReader, opts ...Option) (*Client, error) {
	return New(BaseURL(ctx, settings), opts...)
}

// New returns a Client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	o := &options{reportTimeout: httpx.DefaultTimeout}
	for _, opt := range opts {
		opt(o)
	}

	hc, err := httpx.NewClient(baseURL, o.http...)
	if err != nil {
		return nil, err
	}
	return &Client{
		http:     hc,
		terrain:  newTerrain(hc, o.reportTimeout),
		coroutes: &CompanyRoutes{client: hc},
		viewer:   &Viewer{client: hc},
	}, nil
}

// BaseURL returns the URL the client talks to.
func (c *Client) BaseURL() string { return c.http.BaseURL() }

// Terrain returns the terrain API. Its availability state is shared by every
// caller of this Client.
func (c *Client) Terrain() *Terrain { return c.terrain }

// CompanyRoutes returns the company route API.
func (c *Client) CompanyRoutes() *CompanyRoutes { return c.coroutes }

// Viewer returns the document viewer API.
func (c *Client) Viewer() *Viewer { return c.viewer }
