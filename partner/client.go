package partner

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/imroc/req/v3"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"recharge-sync/config"
)

const (
	featurePath  = "/user/means/get-user-recharge-feature"
	probePath    = "/article/gift/list"
	probeTimeout = 15 * time.Second
)

// Client reads recharge features from the upstream platform. Large
// identifier sets are split into batches and fetched concurrently behind
// a weighted semaphore so a big sync cannot stampede the upstream.
type Client struct {
	session       *Session
	client        *req.Client
	timeout       time.Duration
	batchSize     int
	maxConcurrent int64
}

func NewClient(cfg *config.Partner, session *Session) *Client {
	client := req.C().
		SetBaseURL(cfg.BaseURL)

	return &Client{
		session:       session,
		client:        client,
		timeout:       cfg.Timeout,
		batchSize:     cfg.BatchSize,
		maxConcurrent: int64(cfg.MaxConcurrent),
	}
}

// BatchSize reports the largest identifier set a single Fetch should carry.
func (c *Client) BatchSize() int {
	return c.batchSize
}

// Fetch issues one read call for a comma-separated uid list. A 401 clears
// the session cache and retries the identical request exactly once; a
// second 401 is a permanent AuthError.
func (c *Client) Fetch(ctx context.Context, userIds string) ([]Item, error) {
	if strings.TrimSpace(userIds) == "" {
		return nil, errors.New("empty userIds")
	}

	headers, err := c.session.AuthHeaders(ctx, nil, false)
	if err != nil {
		return nil, err
	}

	items, status, err := c.doFetch(ctx, userIds, headers)
	if err != nil {
		return nil, err
	}
	if status != http.StatusUnauthorized {
		return items, nil
	}

	log.Warn("partner returned 401, refreshing token and retrying once", "userIds", userIds)
	c.session.ClearCache()
	headers, err = c.session.AuthHeaders(ctx, nil, true)
	if err != nil {
		return nil, err
	}

	items, status, err = c.doFetch(ctx, userIds, headers)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, &AuthError{Msg: "still unauthorized after forced token refresh"}
	}

	return items, nil
}

// FetchWithToken issues the read call with a caller-supplied bearer token,
// bypassing the session entirely. A 401 here is immediately permanent
// since there is nothing to refresh.
func (c *Client) FetchWithToken(ctx context.Context, userIds string, token string) ([]Item, error) {
	if strings.TrimSpace(userIds) == "" {
		return nil, errors.New("empty userIds")
	}
	if !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}

	items, status, err := c.doFetch(ctx, userIds, c.session.composeHeaders(token, nil))
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, &AuthError{Msg: "supplied token rejected by upstream"}
	}

	return items, nil
}

// BatchFetch partitions uids into batchSize chunks and fetches them
// concurrently. A failed chunk contributes zero items and is logged; the
// call as a whole only returns the merged successes.
func (c *Client) BatchFetch(ctx context.Context, uids []int64) ([]Item, error) {
	if len(uids) == 0 {
		return []Item{}, nil
	}

	chunks := chunk(uids, c.batchSize)
	log.Info("batch fetch start", "uids", len(uids), "chunks", len(chunks), "batchSize", c.batchSize)

	sem := semaphore.NewWeighted(c.maxConcurrent)
	results := make([][]Item, len(chunks))
	var wg sync.WaitGroup

	for i, part := range chunks {
		wg.Add(1)
		go func(i int, part []int64) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				log.Error("batch chunk skipped", "chunk", i+1, "error", err)
				return
			}
			defer sem.Release(1)

			items, err := c.Fetch(ctx, joinUIDs(part))
			if err != nil {
				// 单批失败不影响其他批次
				log.Error("batch chunk fetch failed", "chunk", i+1, "size", len(part), "error", err)
				return
			}
			results[i] = items
		}(i, part)
	}
	wg.Wait()

	merged := make([]Item, 0, len(uids))
	for _, items := range results {
		merged = append(merged, items...)
	}

	log.Info("batch fetch done", "uids", len(uids), "items", len(merged))
	return merged, nil
}

// ConnectionStatus is the result of an authenticated probe call.
type ConnectionStatus struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// TestConnection performs a cheap authenticated call to verify both
// reachability and the credential.
func (c *Client) TestConnection(ctx context.Context) (*ConnectionStatus, error) {
	headers, err := c.session.AuthHeaders(ctx, nil, false)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(map[string]interface{}{"pageNum": 1, "pageSize": 10}).
		Post(probePath)
	if err != nil {
		return nil, &TransientError{Op: "probe", Err: err}
	}

	status := &ConnectionStatus{
		Success:    resp.StatusCode == http.StatusOK,
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
	}
	return status, nil
}

// doFetch is one GET round trip. It reports 401 through the status return
// so the caller owns the refresh-and-retry decision.
func (c *Client) doFetch(ctx context.Context, userIds string, headers map[string]string) ([]Item, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParam("userIds", userIds).
		Get(featurePath)
	if err != nil {
		return nil, 0, &TransientError{Op: "fetch", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, http.StatusUnauthorized, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, resp.StatusCode, &TransientError{Op: "fetch", Err: errors.Errorf("http status %s", resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return nil, resp.StatusCode, &UpstreamError{Code: resp.StatusCode, Msg: resp.Status}
	}

	var fr featureResponse
	if err = json.Unmarshal(resp.Bytes(), &fr); err != nil {
		return nil, resp.StatusCode, &TransientError{Op: "fetch", Err: errors.Wrap(err, "decode feature response")}
	}

	if fr.Code != http.StatusOK {
		return nil, resp.StatusCode, &UpstreamError{Code: fr.Code, Msg: fr.errMsg()}
	}

	// 上游偶尔返回空 data/items，按空结果处理而不是报错
	if fr.Data == nil || fr.Data.Items == nil {
		return []Item{}, resp.StatusCode, nil
	}

	return fr.Data.Items, resp.StatusCode, nil
}

func chunk(uids []int64, size int) [][]int64 {
	if size <= 0 {
		size = 100
	}

	var parts [][]int64
	for start := 0; start < len(uids); start += size {
		end := start + size
		if end > len(uids) {
			end = len(uids)
		}
		parts = append(parts, uids[start:end])
	}

	return parts
}

func joinUIDs(uids []int64) string {
	strs := make([]string, len(uids))
	for i, uid := range uids {
		strs[i] = strconv.FormatInt(uid, 10)
	}

	return strings.Join(strs, ",")
}
