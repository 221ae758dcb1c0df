// Package featureservice is a gateway over a hosted feature service REST API:
// token generation on the portal, layer query and layer or service-level
// applyEdits. Requests are throttled client-side.
package featureservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/enum"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
)

const (
	// tokenRefreshMargin renews a token this long before it expires.
	tokenRefreshMargin = time.Minute
	defaultTokenTTL    = time.Hour
	defaultTimeout     = 30 * time.Second
	// codeObjectMissing is the edit result code for an unknown object id.
	codeObjectMissing = 1019
)

// Config configures a Client.
type Config struct {
	PortalURL    string
	Username     string // empty for public layers
	Password     string
	OrdersURL    string // .../FeatureServer/<layer id>
	InventoryURL string
	// ServiceURL is the .../FeatureServer root holding both layers. When set
	// the gateway commits multi-table edits in one service-level applyEdits.
	ServiceURL string
	RPS        float64 // <= 0 disables throttling
	TokenTTL   time.Duration
	HTTPClient *http.Client
}

// Client talks to the feature service. Use Gateway to obtain the
// gateway.Gateway view of it.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	layers  map[gateway.Table]string
	now     func() time.Time

	mu       sync.Mutex
	token    string
	expires  time.Time
	idFields map[gateway.Table]string
}

var _ gateway.Gateway = (*Client)(nil)

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.OrdersURL == "" || cfg.InventoryURL == "" {
		return nil, errors.New("featureservice: orders and inventory layer URLs are required")
	}
	if cfg.Username != "" && cfg.PortalURL == "" {
		return nil, errors.New("featureservice: portal URL is required to authenticate")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	return &Client{
		cfg:     cfg,
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
		layers: map[gateway.Table]string{
			gateway.Orders:    strings.TrimRight(cfg.OrdersURL, "/"),
			gateway.Inventory: strings.TrimRight(cfg.InventoryURL, "/"),
		},
		now:      time.Now,
		idFields: map[gateway.Table]string{},
	}, nil
}

// Gateway returns the client as a gateway. With a ServiceURL configured the
// result also implements gateway.Atomic.
func (c *Client) Gateway() gateway.Gateway {
	if c.cfg.ServiceURL != "" {
		return &atomicClient{c}
	}
	return c
}

// --- Wire types ---

type apiError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *apiError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("service error %d: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("service error %d: %s", e.Code, e.Message)
}

type tokenResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"` // epoch ms
}

type feature struct {
	Attributes map[string]any `json:"attributes"`
}

type queryResponse struct {
	ObjectIDFieldName     string    `json:"objectIdFieldName"`
	Features              []feature `json:"features"`
	ExceededTransferLimit bool      `json:"exceededTransferLimit"`
}

type editError struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

type editResult struct {
	ObjectID int64      `json:"objectId"`
	Success  bool       `json:"success"`
	Error    *editError `json:"error,omitempty"`
}

type editResponse struct {
	AddResults    []editResult `json:"addResults"`
	UpdateResults []editResult `json:"updateResults"`
}

// --- Transport ---

// post sends a form-encoded request and decodes the JSON reply into out.
// A reply carrying a top-level "error" object is returned as *apiError.
func (c *Client) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d", path.Base(endpoint), resp.StatusCode)
	}

	var envelope struct {
		Error *apiError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		return envelope.Error
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path.Base(endpoint), err)
	}
	return nil
}

// authToken returns a valid token, generating a new one when the cached token
// is missing or about to expire. Public layers get an empty token.
func (c *Client) authToken(ctx context.Context) (string, error) {
	if c.cfg.Username == "" {
		return "", nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(tokenRefreshMargin).Before(c.expires) {
		return c.token, nil
	}

	form := url.Values{
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
		"client":     {"referer"},
		"referer":    {c.cfg.PortalURL},
		"expiration": {strconv.Itoa(int(c.cfg.TokenTTL / time.Minute))},
		"f":          {"json"},
	}
	var resp tokenResponse
	endpoint := strings.TrimRight(c.cfg.PortalURL, "/") + "/sharing/rest/generateToken"
	if err := c.post(ctx, endpoint, form, &resp); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	if resp.Token == "" {
		return "", errors.New("generate token: empty token")
	}
	c.token = resp.Token
	c.expires = time.UnixMilli(resp.Expires)
	if resp.Expires == 0 {
		c.expires = c.now().Add(c.cfg.TokenTTL)
	}
	return c.token, nil
}

// form builds the common request parameters.
func (c *Client) form(ctx context.Context) (url.Values, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}
	v := url.Values{"f": {"json"}}
	if token != "" {
		v.Set("token", token)
	}
	return v, nil
}

func (c *Client) layerURL(t gateway.Table) (string, error) {
	u, ok := c.layers[t]
	if !ok {
		return "", fmt.Errorf("no layer configured for table %q", t)
	}
	return u, nil
}

// idField is the object id attribute reported by the last query of t.
func (c *Client) idField(t gateway.Table) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.idFields[t]; ok {
		return f
	}
	return enum.OrderAttrID
}

func (c *Client) setIDField(t gateway.Table, name string) {
	if name == "" {
		return
	}
	c.mu.Lock()
	c.idFields[t] = name
	c.mu.Unlock()
}

// --- gateway.Gateway ---

// QueryAll implements gateway.Gateway. Pages are followed while the service
// reports exceededTransferLimit, ordered by object id so offsets stay stable.
func (c *Client) QueryAll(ctx context.Context, t gateway.Table) ([]gateway.Record, error) {
	op := "query " + string(t)
	layer, err := c.layerURL(t)
	if err != nil {
		return nil, gateway.RemoteError(op, err)
	}

	var out []gateway.Record
	for offset := 0; ; {
		form, err := c.form(ctx)
		if err != nil {
			return nil, gateway.RemoteError(op, err)
		}
		form.Set("where", "1=1")
		form.Set("outFields", "*")
		form.Set("returnGeometry", "false")
		form.Set("orderByFields", c.idField(t)+" ASC")
		form.Set("resultOffset", strconv.Itoa(offset))

		var resp queryResponse
		if err := c.post(ctx, layer+"/query", form, &resp); err != nil {
			return nil, gateway.RemoteError(op, err)
		}
		c.setIDField(t, resp.ObjectIDFieldName)
		idField := c.idField(t)

		for _, f := range resp.Features {
			id, ok, err := gateway.Int64(f.Attributes, idField)
			if err != nil || !ok {
				return nil, gateway.RemoteError(op, fmt.Errorf("feature without %s", idField))
			}
			out = append(out, gateway.Record{ID: id, Attributes: f.Attributes})
		}
		if !resp.ExceededTransferLimit || len(resp.Features) == 0 {
			return out, nil
		}
		offset += len(resp.Features)
	}
}

// UpdateRecords implements gateway.Gateway with rollbackOnFailure, so one
// unknown id rejects the whole batch.
func (c *Client) UpdateRecords(ctx context.Context, t gateway.Table, updates []gateway.Record) error {
	op := "update " + string(t)
	if len(updates) == 0 {
		return nil
	}
	layer, err := c.layerURL(t)
	if err != nil {
		return gateway.RemoteError(op, err)
	}
	form, err := c.form(ctx)
	if err != nil {
		return gateway.RemoteError(op, err)
	}
	payload, err := json.Marshal(c.features(t, updates))
	if err != nil {
		return gateway.RemoteError(op, err)
	}
	form.Set("updates", string(payload))
	form.Set("rollbackOnFailure", "true")

	var resp editResponse
	if err := c.post(ctx, layer+"/applyEdits", form, &resp); err != nil {
		return gateway.RemoteError(op, err)
	}
	return checkResults(op, t, resp.UpdateResults, len(updates))
}

// InsertRecord implements gateway.Gateway.
func (c *Client) InsertRecord(ctx context.Context, t gateway.Table, attrs map[string]any) (int64, error) {
	op := "insert " + string(t)
	layer, err := c.layerURL(t)
	if err != nil {
		return 0, gateway.RemoteError(op, err)
	}
	form, err := c.form(ctx)
	if err != nil {
		return 0, gateway.RemoteError(op, err)
	}
	payload, err := json.Marshal([]feature{{Attributes: attrs}})
	if err != nil {
		return 0, gateway.RemoteError(op, err)
	}
	form.Set("adds", string(payload))

	var resp editResponse
	if err := c.post(ctx, layer+"/applyEdits", form, &resp); err != nil {
		return 0, gateway.RemoteError(op, err)
	}
	if err := checkResults(op, t, resp.AddResults, 1); err != nil {
		return 0, err
	}
	return resp.AddResults[0].ObjectID, nil
}

// features renders updates as feature JSON with the layer's id attribute set.
func (c *Client) features(t gateway.Table, updates []gateway.Record) []feature {
	idField := c.idField(t)
	out := make([]feature, len(updates))
	for i, u := range updates {
		attrs := gateway.Clone(u.Attributes)
		attrs[idField] = u.ID
		out[i] = feature{Attributes: attrs}
	}
	return out
}

// checkResults maps per-feature edit results onto gateway errors.
func checkResults(op string, t gateway.Table, results []editResult, want int) error {
	if len(results) != want {
		return gateway.RemoteError(op, fmt.Errorf("expected %d edit results, got %d", want, len(results)))
	}
	for _, r := range results {
		if r.Success {
			continue
		}
		if r.Error != nil && r.Error.Code == codeObjectMissing {
			return gateway.NotFoundError(t, r.ObjectID)
		}
		desc := "edit rejected"
		if r.Error != nil {
			desc = fmt.Sprintf("%s (code %d)", r.Error.Description, r.Error.Code)
		}
		return gateway.RemoteError(op, fmt.Errorf("object %d: %s", r.ObjectID, desc))
	}
	return nil
}

// --- gateway.Atomic ---

type atomicClient struct {
	*Client
}

var _ gateway.Atomic = (*atomicClient)(nil)

type layerEdits struct {
	ID      int       `json:"id"`
	Updates []feature `json:"updates"`
}

type layerEditResult struct {
	ID            int          `json:"id"`
	UpdateResults []editResult `json:"updateResults"`
}

// ApplyEdits implements gateway.Atomic with a service-level applyEdits call
// and rollbackOnFailure.
func (a *atomicClient) ApplyEdits(ctx context.Context, edits []gateway.TableEdit) error {
	const op = "apply edits"
	byLayer := map[int]gateway.TableEdit{}
	var payload []layerEdits
	for _, e := range edits {
		if len(e.Updates) == 0 {
			continue
		}
		layer, err := a.layerURL(e.Table)
		if err != nil {
			return gateway.RemoteError(op, err)
		}
		id, err := strconv.Atoi(path.Base(layer))
		if err != nil {
			return gateway.RemoteError(op, fmt.Errorf("layer URL %q does not end in a layer id", layer))
		}
		byLayer[id] = e
		payload = append(payload, layerEdits{ID: id, Updates: a.features(e.Table, e.Updates)})
	}
	if len(payload) == 0 {
		return nil
	}

	form, err := a.form(ctx)
	if err != nil {
		return gateway.RemoteError(op, err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return gateway.RemoteError(op, err)
	}
	form.Set("edits", string(body))
	form.Set("rollbackOnFailure", "true")

	var resp []layerEditResult
	endpoint := strings.TrimRight(a.cfg.ServiceURL, "/") + "/applyEdits"
	if err := a.post(ctx, endpoint, form, &resp); err != nil {
		return gateway.RemoteError(op, err)
	}
	if len(resp) != len(payload) {
		return gateway.RemoteError(op, fmt.Errorf("expected results for %d layers, got %d", len(payload), len(resp)))
	}
	for _, lr := range resp {
		e, ok := byLayer[lr.ID]
		if !ok {
			return gateway.RemoteError(op, fmt.Errorf("result for unexpected layer %d", lr.ID))
		}
		if err := checkResults(op, e.Table, lr.UpdateResults, len(e.Updates)); err != nil {
			return err
		}
	}
	return nil
}
