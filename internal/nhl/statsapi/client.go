// Package statsapi reads schedules and live game state from the NHL stats API.
package statsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"nhlbot/internal/nhl"
	"nhlbot/pkg/logx"
)

const (
	DefaultBaseURL = "https://statsapi.web.nhl.com/api/v1"

	defaultTimeout   = 10 * time.Second
	defaultRetryMax  = 3
	defaultRetryBase = 500 * time.Millisecond
	defaultRate      = 5.0
	expand           = "schedule.scoringplays"
)

// ErrFetch marks a request that failed after the retry budget was spent,
// or whose payload could not be used.
var ErrFetch = errors.New("statsapi fetch failed")

// Config configures a Client. Zero values select the defaults.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration // per attempt
	// RetryMax is the number of retries after the first attempt. 0 selects
	// the default of 3; a negative value disables retries.
	RetryMax int
	RetryBase  time.Duration
	RatePerSec float64
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL   string
	http      httpDoer
	timeout   time.Duration
	retryMax  int
	retryBase time.Duration
	limiter   *rate.Limiter
	log       logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:   cfg.Timeout,
		retryMax:  cfg.RetryMax,
		retryBase: cfg.RetryBase,
		log:       log.With(logx.String("comp", "statsapi")),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if cfg.HTTPClient != nil {
		c.http = cfg.HTTPClient
	} else {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.retryMax < 0 {
		c.retryMax = 0
	} else if c.retryMax == 0 {
		c.retryMax = defaultRetryMax
	}
	if c.retryBase <= 0 {
		c.retryBase = defaultRetryBase
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = defaultRate
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	return c
}

type scheduleResponse struct {
	Dates []struct {
		Date  string         `json:"date"`
		Games []nhl.Snapshot `json:"games"`
	} `json:"dates"`
}

// Schedule returns every game of team between from and to (inclusive days),
// ordered by start time.
func (c *Client) Schedule(ctx context.Context, team nhl.Team, from, to time.Time) ([]nhl.Snapshot, error) {
	q := map[string]string{
		"teamId":    strconv.Itoa(team.ID()),
		"startDate": from.Format("2006-01-02"),
		"endDate":   to.Format("2006-01-02"),
	}
	var resp scheduleResponse
	if err := c.get(ctx, "/schedule", q, &resp); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", team.Code(), err)
	}
	var out []nhl.Snapshot
	for _, d := range resp.Dates {
		for _, g := range d.Games {
			if g.GamePk <= 0 || g.GameDate.IsZero() {
				return nil, fmt.Errorf("schedule %s: %w: %w", team.Code(), ErrFetch, nhl.ErrMalformedSnapshot)
			}
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GameDate.Before(out[j].GameDate) })
	return out, nil
}

// Game returns the current snapshot of one game.
func (c *Client) Game(ctx context.Context, gamePk int) (nhl.Snapshot, error) {
	var resp scheduleResponse
	if err := c.get(ctx, "/schedule", map[string]string{"gamePk": strconv.Itoa(gamePk)}, &resp); err != nil {
		return nhl.Snapshot{}, fmt.Errorf("game %d: %w", gamePk, err)
	}
	for _, d := range resp.Dates {
		for _, g := range d.Games {
			if g.GamePk == gamePk {
				return g, nil
			}
		}
	}
	return nhl.Snapshot{}, fmt.Errorf("game %d: %w: %w", gamePk, ErrFetch, nhl.ErrMalformedSnapshot)
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retryMax)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		return c.do(ctx, path, query, out)
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("stats api retry",
			logx.String("path", path),
			logx.Int("attempt", attempt),
			logx.Duration("backoff", wait),
			logx.Err(err),
		)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w after %d attempt(s): %w", ErrFetch, attempt, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, query map[string]string, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return backoff.Permanent(err)
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	q.Set("expand", expand)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %v", nhl.ErrMalformedSnapshot, err))
	}
	return nil
}
