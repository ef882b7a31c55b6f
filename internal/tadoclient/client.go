// Package tadoclient implements the subset of the Tadoº REST API the
// scheduler needs: zone discovery, timetable block get/put and the home
// presence lock. Authentication uses the OAuth password grant, renewing the
// access token through the refresh grant when it expires.
package tadoclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/clambin/tado-scheduler/internal/schedule"
)

// ErrUnsupportedTimetable indicates the device reports a timetable type other
// than ONE_DAY. Not recoverable locally.
var ErrUnsupportedTimetable = errors.New("only one-day timetables are supported")

const (
	defaultAPIURL       = "https://my.tado.com/api"
	defaultAuthURL      = "https://auth.tado.com/oauth/token"
	defaultClientSecret = "wZaRN7rpjn3FoNyF5IFuxg9uMzYJcvOoQ8QWiIqS3hfk6gLhVlG57j5YNoZL2Rtc"
)

const (
	PresenceHome = "HOME"
	PresenceAway = "AWAY"
)

// Zone is one heating zone, as reported by the device.
type Zone struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Client struct {
	httpClient   *http.Client
	apiURL       string
	authURL      string
	username     string
	password     string
	clientSecret string
	logger       *slog.Logger

	lock         sync.Mutex
	accessToken  string
	refreshToken string
	expires      time.Time
	homeID       int
}

type Option func(*Client)

// WithHTTPClient overrides the http client used to call the API, e.g. to add
// an instrumented transport.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURLs overrides the API and auth endpoints. Used in tests.
func WithBaseURLs(apiURL, authURL string) Option {
	return func(c *Client) {
		c.apiURL = apiURL
		c.authURL = authURL
	}
}

func New(username, password, clientSecret string, logger *slog.Logger, options ...Option) *Client {
	if clientSecret == "" {
		clientSecret = defaultClientSecret
	}
	c := Client{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		apiURL:       defaultAPIURL,
		authURL:      defaultAuthURL,
		username:     username,
		password:     password,
		clientSecret: clientSecret,
		logger:       logger,
	}
	for _, option := range options {
		option(&c)
	}
	return &c
}

// Zones returns the zones configured for the user's home.
func (c *Client) Zones(ctx context.Context) ([]Zone, error) {
	homeID, err := c.getHomeID(ctx)
	if err != nil {
		return nil, err
	}
	var zones []Zone
	err = c.call(ctx, http.MethodGet, fmt.Sprintf("/v2/homes/%d/zones", homeID), nil, &zones)
	return zones, err
}

// ActiveTimetable returns the id of a zone's active timetable, validating
// that the zone runs a single-day schedule.
func (c *Client) ActiveTimetable(ctx context.Context, zoneID int) (int, error) {
	homeID, err := c.getHomeID(ctx)
	if err != nil {
		return 0, err
	}
	var timetable struct {
		ID   int    `json:"id"`
		Type string `json:"type"`
	}
	if err = c.call(ctx, http.MethodGet, fmt.Sprintf("/v2/homes/%d/zones/%d/schedule/activeTimetable", homeID, zoneID), nil, &timetable); err != nil {
		return 0, err
	}
	if timetable.Type != "ONE_DAY" {
		return 0, fmt.Errorf("%w: zone %d reports %q", ErrUnsupportedTimetable, zoneID, timetable.Type)
	}
	return timetable.ID, nil
}

// Blocks returns a zone's current timetable blocks.
func (c *Client) Blocks(ctx context.Context, zoneID, timetableID int) ([]schedule.WireBlock, error) {
	homeID, err := c.getHomeID(ctx)
	if err != nil {
		return nil, err
	}
	var blocks []schedule.WireBlock
	err = c.call(ctx, http.MethodGet, fmt.Sprintf("/v2/homes/%d/zones/%d/schedule/timetables/%d/blocks", homeID, zoneID, timetableID), nil, &blocks)
	return blocks, err
}

// SetBlocks replaces a zone's timetable blocks for the whole week.
func (c *Client) SetBlocks(ctx context.Context, zoneID, timetableID int, blocks []schedule.WireBlock) error {
	homeID, err := c.getHomeID(ctx)
	if err != nil {
		return err
	}
	return c.call(ctx, http.MethodPut, fmt.Sprintf("/v2/homes/%d/zones/%d/schedule/timetables/%d/blocks/MONDAY_TO_SUNDAY", homeID, zoneID, timetableID), blocks, nil)
}

// SetPresence locks the home's presence to PresenceHome or PresenceAway.
func (c *Client) SetPresence(ctx context.Context, presence string) error {
	homeID, err := c.getHomeID(ctx)
	if err != nil {
		return err
	}
	request := struct {
		HomePresence string `json:"homePresence"`
	}{HomePresence: presence}
	return c.call(ctx, http.MethodPut, fmt.Sprintf("/v2/homes/%d/presenceLock", homeID), request, nil)
}

// Presence returns the home's current presence state.
func (c *Client) Presence(ctx context.Context) (string, error) {
	homeID, err := c.getHomeID(ctx)
	if err != nil {
		return "", err
	}
	var state struct {
		Presence string `json:"presence"`
	}
	err = c.call(ctx, http.MethodGet, fmt.Sprintf("/v2/homes/%d/state", homeID), nil, &state)
	return state.Presence, err
}

func (c *Client) getHomeID(ctx context.Context) (int, error) {
	c.lock.Lock()
	homeID := c.homeID
	c.lock.Unlock()
	if homeID > 0 {
		return homeID, nil
	}

	var me struct {
		HomeID int `json:"homeId"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/me", nil, &me); err != nil {
		return 0, fmt.Errorf("home id: %w", err)
	}

	c.lock.Lock()
	c.homeID = me.HomeID
	c.lock.Unlock()
	return me.HomeID, nil
}

func (c *Client) call(ctx context.Context, method, path string, request, response any) error {
	token, err := c.authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	var body io.Reader
	if request != nil {
		payload, err := json.Marshal(request)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		if response == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(response)
	case http.StatusNoContent:
		return nil
	case http.StatusForbidden:
		// authenticated but forbidden: force a password login on the next call
		c.lock.Lock()
		c.refreshToken = ""
		c.lock.Unlock()
		return errors.New(resp.Status)
	case http.StatusUnprocessableEntity:
		errBody, _ := io.ReadAll(resp.Body)
		return errors.New(string(errBody))
	default:
		return errors.New(resp.Status)
	}
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var err error
	if c.refreshToken != "" {
		if time.Now().After(c.expires) {
			err = c.doAuthentication(ctx, "refresh_token", c.refreshToken)
		}
	} else {
		err = c.doAuthentication(ctx, "password", c.password)
	}
	return c.accessToken, err
}

func (c *Client) doAuthentication(ctx context.Context, grantType, credential string) error {
	c.logger.Debug("authenticating", slog.String("grant_type", grantType))

	form := url.Values{}
	form.Add("client_id", "tado-web-app")
	form.Add("client_secret", c.clientSecret)
	form.Add("grant_type", grantType)
	form.Add(grantType, credential)
	form.Add("scope", "home.user")
	if grantType == "password" {
		form.Add("username", c.username)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "https://my.tado.com/")

	resp, err := c.httpClient.Do(req)
	if err == nil {
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode == http.StatusOK {
			var grant struct {
				AccessToken  string  `json:"access_token"`
				RefreshToken string  `json:"refresh_token"`
				ExpiresIn    float64 `json:"expires_in"`
			}
			if err = json.NewDecoder(resp.Body).Decode(&grant); err == nil {
				c.accessToken = grant.AccessToken
				c.refreshToken = grant.RefreshToken
				c.expires = time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
			}
		} else {
			err = errors.New(resp.Status)
		}
	}

	if err != nil && grantType == "refresh_token" {
		// failed during refresh. reset refresh_token to force a password login
		c.refreshToken = ""
	}
	c.logger.Debug("authenticated", slog.Any("err", err), slog.Time("expires", c.expires))

	return err
}
