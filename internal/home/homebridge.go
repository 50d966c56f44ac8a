// Package home talks to a Homebridge instance: token auth, accessory lookup,
// and characteristic writes. It backs both the home-automation command
// handler and the alert protocol's lighting action.
package home

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"lcars/internal/alert"
	"lcars/internal/intent"
)

// ErrNoAccessory is returned when no accessory matches the requested name.
var ErrNoAccessory = errors.New("no matching accessory")

// Client is a minimal Homebridge REST client. The bearer token is fetched on
// first use and kept for the process lifetime.
type Client struct {
	baseURL  string
	username string
	password string
	lamp     string // accessory driven by the alert protocol
	hc       *http.Client

	mu    sync.Mutex
	token string
}

// Config configures the client. HTTPClient may be nil.
type Config struct {
	BaseURL    string // e.g. http://pi1.local:8581
	Username   string
	Password   string
	AlertLamp  string
	HTTPClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		lamp:     cfg.AlertLamp,
		hc:       cfg.HTTPClient,
	}
}

type accessory struct {
	UniqueID    string         `json:"uniqueId"`
	ServiceName string         `json:"serviceName"`
	Values      map[string]any `json:"values"`
}

// Execute handles a home-automation intent. Parameters: "device" (accessory
// name), "action" (on/off), optional "brightness" 0-100.
func (c *Client) Execute(ctx context.Context, it intent.Intent) (string, error) {
	device := it.Parameters["device"]
	if device == "" {
		return "", errors.New("no device in command")
	}

	switch it.Parameters["action"] {
	case "on":
		if err := c.setCharacteristic(ctx, device, "On", true); err != nil {
			return "", err
		}
		if b := it.Parameters["brightness"]; b != "" {
			if n, err := strconv.Atoi(b); err == nil {
				if err := c.setCharacteristic(ctx, device, "Brightness", n); err != nil {
					return "", err
				}
			}
		}
		return fmt.Sprintf("%s is on", device), nil
	case "off":
		if err := c.setCharacteristic(ctx, device, "On", false); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s is off", device), nil
	case "brightness":
		n, err := strconv.Atoi(it.Parameters["brightness"])
		if err != nil {
			return "", fmt.Errorf("bad brightness %q", it.Parameters["brightness"])
		}
		if err := c.setCharacteristic(ctx, device, "Brightness", n); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s set to %d percent", device, n), nil
	default:
		return "", fmt.Errorf("unsupported action %q", it.Parameters["action"])
	}
}

// State reads the alert lamp's current lighting state.
func (c *Client) State(ctx context.Context) (alert.LightState, error) {
	acc, err := c.findAccessory(ctx, c.lamp)
	if err != nil {
		return alert.LightState{}, err
	}
	st := alert.LightState{
		On:         asBool(acc.Values["On"]),
		Hue:        asInt(acc.Values["Hue"]),
		Saturation: asInt(acc.Values["Saturation"]),
		Brightness: asInt(acc.Values["Brightness"]),
	}
	return st, nil
}

// Set drives the alert lamp to the given state.
func (c *Client) Set(ctx context.Context, state alert.LightState) error {
	if err := c.setCharacteristic(ctx, c.lamp, "On", state.On); err != nil {
		return err
	}
	if !state.On {
		return nil
	}
	for _, ch := range []struct {
		name  string
		value int
	}{
		{"Hue", state.Hue},
		{"Saturation", state.Saturation},
		{"Brightness", state.Brightness},
	} {
		if err := c.setCharacteristic(ctx, c.lamp, ch.name, ch.value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) setCharacteristic(ctx context.Context, name, characteristic string, value any) error {
	acc, err := c.findAccessory(ctx, name)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"characteristicType": characteristic,
		"value":              value,
	})
	if err != nil {
		return err
	}

	var resp *http.Response
	err = c.authorized(ctx, func(token string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut,
			c.baseURL+"/api/accessories/"+acc.UniqueID, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err = c.hc.Do(req)
		return err
	})
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", name, characteristic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("set %s.%s: %s: %s", name, characteristic, resp.Status, msg)
	}
	return nil
}

func (c *Client) findAccessory(ctx context.Context, name string) (accessory, error) {
	var accs []accessory
	err := c.authorized(ctx, func(token string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/accessories", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("list accessories: %s", resp.Status)
		}
		return json.NewDecoder(resp.Body).Decode(&accs)
	})
	if err != nil {
		return accessory{}, err
	}

	want := strings.ToLower(name)
	for _, a := range accs {
		if strings.Contains(strings.ToLower(a.ServiceName), want) {
			return a, nil
		}
	}
	return accessory{}, fmt.Errorf("%w: %q", ErrNoAccessory, name)
}

// authorized runs fn with the cached token, logging in first when none is
// held yet.
func (c *Client) authorized(ctx context.Context, fn func(token string) error) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == "" {
		var err error
		if token, err = c.login(ctx); err != nil {
			return err
		}
	}
	return fn(token)
}

func (c *Client) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("homebridge login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("homebridge login: %s", resp.Status)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}

	c.mu.Lock()
	c.token = out.AccessToken
	c.mu.Unlock()
	return out.AccessToken, nil
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	default:
		return false
	}
}

func asInt(v any) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}
