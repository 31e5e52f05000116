// Package syncclient pushes a tier's offline queue upstream and pulls the
// upstream tier's changes into the local mirror.
//
// Pushes are single-flight per Client. A failed push leaves the queue
// untouched and a failed pull leaves the cursor where it was, so a retry on
// the next cycle resends or refetches everything.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roach88/ataa/internal/auth"
	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/metrics"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/queue"
	"github.com/roach88/ataa/internal/store"
)

// Config describes the upstream tier and this client's identity.
type Config struct {
	BaseURL       string
	HubID         string
	ZoneID        string
	Username      string
	Password      string
	LoginTimeout  time.Duration
	SyncTimeout   time.Duration
	TokenMargin   time.Duration
	TokenLifetime time.Duration
}

func (c *Config) setDefaults() {
	if c.LoginTimeout == 0 {
		c.LoginTimeout = 10 * time.Second
	}
	if c.SyncTimeout == 0 {
		c.SyncTimeout = 30 * time.Second
	}
	if c.TokenMargin == 0 {
		c.TokenMargin = time.Minute
	}
	if c.TokenLifetime == 0 {
		c.TokenLifetime = 23 * time.Hour
	}
}

// Prober reports whether the upstream tier is reachable.
type Prober interface {
	Online(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) bool

func (f ProberFunc) Online(ctx context.Context) bool { return f(ctx) }

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithProber replaces the default /healthz probe.
func WithProber(p Prober) Option {
	return func(c *Client) { c.prober = p }
}

// Client talks to one upstream tier.
type Client struct {
	cfg     Config
	http    *http.Client
	prober  Prober
	tokens  *TokenCache
	store   *store.Store
	queue   *queue.Queue
	ids     model.IDGenerator
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	pushing atomic.Bool
}

func New(cfg Config, st *store.Store, q *queue.Queue, ids model.IDGenerator, c clock.Clock, logger *slog.Logger, m *metrics.Metrics, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("syncclient: upstream url is required")
	}
	if cfg.HubID == "" {
		return nil, errors.New("syncclient: hub id is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.setDefaults()

	cl := &Client{
		cfg:     cfg,
		http:    &http.Client{},
		store:   st,
		queue:   q,
		ids:     ids,
		clock:   c,
		logger:  logger,
		metrics: m,
	}
	cl.prober = ProberFunc(cl.probe)
	for _, opt := range opts {
		opt(cl)
	}
	cl.tokens = NewTokenCache(cl.login, cfg.TokenMargin, cfg.TokenLifetime, c)
	return cl, nil
}

// Online reports the prober's view of connectivity.
func (c *Client) Online(ctx context.Context) bool {
	return c.prober.Online(ctx)
}

// probe treats any HTTP answer from /healthz as online.
func (c *Client) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LoginTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Push sends the whole offline queue as one batch. On success every sent
// record is marked synced (or conflict, when the upstream tier rejected
// it), the sent items are removed and the pull cursor moves to the server
// timestamp. An empty queue is a no-op.
func (c *Client) Push(ctx context.Context) (*model.PushResponse, error) {
	if !c.pushing.CompareAndSwap(false, true) {
		c.metrics.ObserveClient("push", "busy")
		return nil, model.Errorf(model.ErrCodeAlreadyInProgress, "push already in progress")
	}
	defer c.pushing.Store(false)

	if !c.Online(ctx) {
		c.metrics.ObserveClient("push", "offline")
		return nil, model.Errorf(model.ErrCodeNoConnectivity, "upstream %s is unreachable", c.cfg.BaseURL)
	}

	var items []model.SyncQueueItem
	err := c.store.View(ctx, func(tx *store.Tx) error {
		var err error
		items, err = c.queue.Drain(ctx, tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("drain queue: %w", err)
	}
	if len(items) == 0 {
		c.logger.Debug("push skipped, queue empty")
		c.metrics.SetQueueDepth(0)
		return &model.PushResponse{Status: model.OutcomeOK, Conflicts: []model.Conflict{}}, nil
	}

	payload, skipped, err := queue.Payload(c.cfg.HubID, clock.Stamp(c.clock), items)
	if err != nil {
		return nil, err
	}
	for _, id := range skipped {
		c.logger.Warn("queue item not pushable, dropping on ack", "item_id", id)
	}

	var resp model.PushResponse
	if err := c.post(ctx, "/sync/push", payload, &resp); err != nil {
		c.metrics.SetQueueDepth(len(items))
		c.fail(ctx, model.DirectionPush, err)
		return nil, err
	}

	sent := make([]string, len(items))
	for i, it := range items {
		sent[i] = it.ID
	}
	err = c.store.InTx(ctx, func(tx *store.Tx) error {
		if err := markPushed(ctx, tx, payload, resp.Conflicts); err != nil {
			return err
		}
		if err := c.queue.Remove(ctx, tx, sent); err != nil {
			return err
		}
		if !resp.ServerTimestamp.IsZero() {
			if err := tx.SetState(ctx, store.StatePullCursor, resp.ServerTimestamp.String()); err != nil {
				return err
			}
		}
		return tx.AppendSyncLog(ctx, model.SyncLogEntry{
			ID:             c.ids.NewID(),
			HubID:          c.cfg.HubID,
			Direction:      model.DirectionPush,
			Outcome:        resp.Status,
			RecordsCount:   resp.RecordsAccepted,
			ConflictsCount: len(resp.Conflicts),
			Timestamp:      clock.Stamp(c.clock),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("record push ack: %w", err)
	}

	c.metrics.ObserveClient("push", "ok")
	c.metrics.SetQueueDepth(0)
	c.logger.Info("push acknowledged",
		"hub_id", c.cfg.HubID,
		"status", resp.Status,
		"records_sent", payload.Len(),
		"records_accepted", resp.RecordsAccepted,
		"conflicts", len(resp.Conflicts))
	return &resp, nil
}

// markPushed stamps sync_status on every record of the batch.
func markPushed(ctx context.Context, tx *store.Tx, p *model.PushPayload, conflicts []model.Conflict) error {
	rejected := make(map[model.EntityType]map[string]bool)
	for _, cf := range conflicts {
		if rejected[cf.EntityType] == nil {
			rejected[cf.EntityType] = make(map[string]bool)
		}
		rejected[cf.EntityType][cf.EntityID] = true
	}
	synced := make(map[model.EntityType][]string)
	conflicted := make(map[model.EntityType][]string)
	for _, rec := range p.Records() {
		e, id := rec.Entity(), rec.RecordID()
		if rejected[e][id] {
			conflicted[e] = append(conflicted[e], id)
		} else {
			synced[e] = append(synced[e], id)
		}
	}
	for _, e := range model.SyncableEntities {
		if err := tx.MarkSynced(ctx, e, model.SyncSynced, synced[e]); err != nil {
			return err
		}
		if err := tx.MarkSynced(ctx, e, model.SyncConflict, conflicted[e]); err != nil {
			return err
		}
	}
	return nil
}

// PullResult summarizes one pull.
type PullResult struct {
	Applied int        `json:"applied"`
	Failed  int        `json:"failed"`
	Cursor  model.Time `json:"cursor"`
}

// Pull fetches the zone's changes since the stored cursor and upserts them
// as synced. The zone row is created locally first so the records' foreign
// keys resolve. Records that still fail are logged and skipped.
func (c *Client) Pull(ctx context.Context) (*PullResult, error) {
	if c.cfg.ZoneID == "" {
		return nil, model.Validationf("pull requires a zone")
	}

	var cursor model.Time
	err := c.store.View(ctx, func(tx *store.Tx) error {
		raw, err := tx.GetState(ctx, store.StatePullCursor)
		if err != nil {
			return err
		}
		cursor, err = model.ParseTime(raw)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read pull cursor: %w", err)
	}

	req := &model.PullRequest{HubID: c.cfg.HubID, ZoneID: c.cfg.ZoneID, SinceTimestamp: cursor}
	var resp model.PullResponse
	if err := c.post(ctx, "/sync/pull", req, &resp); err != nil {
		c.fail(ctx, model.DirectionPull, err)
		return nil, err
	}

	res := &PullResult{Cursor: cursor}
	now := clock.Stamp(c.clock)
	err = c.store.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.EnsureZone(ctx, c.cfg.ZoneID, now); err != nil {
			return err
		}
		if resp.Updates != nil {
			for _, rec := range resp.Updates.Records() {
				if s, ok := rec.(model.Syncable); ok {
					s.SetSyncStatus(model.SyncSynced)
				}
				err := tx.Savepoint(ctx, func() error { return tx.Upsert(ctx, rec) })
				if err != nil {
					res.Failed++
					c.logger.Warn("pulled record not applied",
						"entity_type", rec.Entity(), "entity_id", rec.RecordID(), "error", err)
					continue
				}
				res.Applied++
			}
		}
		if !resp.ServerTimestamp.IsZero() {
			res.Cursor = resp.ServerTimestamp
			if err := tx.SetState(ctx, store.StatePullCursor, resp.ServerTimestamp.String()); err != nil {
				return err
			}
		}
		outcome := model.OutcomeOK
		if res.Failed > 0 {
			outcome = model.OutcomePartial
		}
		return tx.AppendSyncLog(ctx, model.SyncLogEntry{
			ID:             c.ids.NewID(),
			HubID:          c.cfg.HubID,
			Direction:      model.DirectionPull,
			Outcome:        outcome,
			RecordsCount:   res.Applied,
			ConflictsCount: res.Failed,
			Timestamp:      now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("apply pull: %w", err)
	}

	c.metrics.ObserveClient("pull", "ok")
	c.logger.Info("pull applied",
		"hub_id", c.cfg.HubID,
		"zone_id", c.cfg.ZoneID,
		"applied", res.Applied,
		"failed", res.Failed,
		"cursor", res.Cursor)
	return res, nil
}

// SyncOnce pushes then pulls. The pull is skipped when the push found no
// connectivity.
func (c *Client) SyncOnce(ctx context.Context) error {
	_, pushErr := c.Push(ctx)
	if model.IsNoConnectivity(pushErr) {
		return pushErr
	}
	_, pullErr := c.Pull(ctx)
	return errors.Join(pushErr, pullErr)
}

// fail writes an error entry to the sync log. The original error is the
// one surfaced; failures writing the entry are only logged.
func (c *Client) fail(ctx context.Context, dir model.Direction, cause error) {
	result := strings.ToLower(string(model.CodeOf(cause)))
	if result == "" {
		result = "error"
	}
	c.metrics.ObserveClient(string(dir), result)
	c.logger.Warn("sync failed", "hub_id", c.cfg.HubID, "direction", dir, "error", cause)

	bg := context.WithoutCancel(ctx)
	err := c.store.InTx(bg, func(tx *store.Tx) error {
		return tx.AppendSyncLog(bg, model.SyncLogEntry{
			ID:        c.ids.NewID(),
			HubID:     c.cfg.HubID,
			Direction: dir,
			Outcome:   model.OutcomeError,
			Error:     cause.Error(),
			Timestamp: clock.Stamp(c.clock),
		})
	})
	if err != nil {
		c.logger.Error("failed to record sync failure", "error", err)
	}
}

// post sends an authenticated JSON request, logging in again and retrying
// once if the cached credential is rejected.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		err = c.do(ctx, c.cfg.SyncTimeout, path, token, data, out)
		if model.IsAuthExpired(err) && attempt == 0 {
			c.logger.Info("credential rejected, logging in again", "path", path)
			c.tokens.Invalidate()
			continue
		}
		return err
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *Client) login(ctx context.Context) (string, time.Time, error) {
	data, err := json.Marshal(loginRequest{Username: c.cfg.Username, Password: c.cfg.Password})
	if err != nil {
		return "", time.Time{}, err
	}
	var tok auth.Token
	if err := c.do(ctx, c.cfg.LoginTimeout, "/auth/token", "", data, &tok); err != nil {
		c.metrics.ObserveClient("login", "error")
		return "", time.Time{}, fmt.Errorf("login to %s: %w", c.cfg.BaseURL, err)
	}
	if tok.Token == "" {
		return "", time.Time{}, model.Errorf(model.ErrCodeServer, "login response has no token")
	}
	c.metrics.ObserveClient("login", "ok")
	return tok.Token, tok.ExpiresAt, nil
}

// errorBody is the error envelope written by the hub and core.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do performs one POST. Transport failures are ErrCodeConnectivity, a 401
// is ErrCodeAuthExpired and any other non-2xx answer is ErrCodeServer.
func (c *Client) do(ctx context.Context, timeout time.Duration, path, token string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.Wrap(model.ErrCodeConnectivity, err, "%s timed out after %s", path, timeout)
		}
		return model.Wrap(model.ErrCodeConnectivity, err, "cannot reach %s%s", c.cfg.BaseURL, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Wrap(model.ErrCodeConnectivity, err, "read %s response", path)
	}
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		return model.Errorf(model.ErrCodeAuthExpired, "%s rejected the credential", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
			msg = eb.Error.Message
		}
		return model.Errorf(model.ErrCodeServer, "%s returned %d: %s", path, resp.StatusCode, msg)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return model.Wrap(model.ErrCodeServer, err, "decode %s response", path)
	}
	return nil
}
