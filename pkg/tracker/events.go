package tracker

import (
	"context"
	"time"
)

type PageViewPayload struct {
	SessionID        string   `json:"sessionId"`
	PageURL          string   `json:"pageUrl"`
	PageTitle        string   `json:"pageTitle,omitempty"`
	Referrer         string   `json:"referrer,omitempty"`
	UserAgent        string   `json:"userAgent,omitempty"`
	DeviceType       string   `json:"deviceType,omitempty"`
	Browser          string   `json:"browser,omitempty"`
	OS               string   `json:"os,omitempty"`
	ScreenResolution string   `json:"screenResolution,omitempty"`
	ViewportSize     string   `json:"viewportSize,omitempty"`
	LoadTime         *float64 `json:"loadTime,omitempty"`
	TimeOnPage       *int64   `json:"timeOnPage,omitempty"`
	ScrollDepth      *float64 `json:"scrollDepth,omitempty"`
}

type EventPayload struct {
	SessionID     string         `json:"sessionId"`
	EventType     string         `json:"eventType"`
	EventCategory string         `json:"eventCategory,omitempty"`
	EventAction   string         `json:"eventAction,omitempty"`
	EventLabel    string         `json:"eventLabel,omitempty"`
	EventValue    *float64       `json:"eventValue,omitempty"`
	PageURL       string         `json:"pageUrl,omitempty"`
	CustomData    map[string]any `json:"customData,omitempty"`
}

// PerformancePayload carries navigation and web-vitals timings in ms.
type PerformancePayload struct {
	SessionID              string   `json:"sessionId"`
	PageURL                string   `json:"pageUrl"`
	LoadTime               *float64 `json:"loadTime,omitempty"`
	DOMContentLoaded       *float64 `json:"domContentLoaded,omitempty"`
	FirstContentfulPaint   *float64 `json:"firstContentfulPaint,omitempty"`
	LargestContentfulPaint *float64 `json:"largestContentfulPaint,omitempty"`
	FirstInputDelay        *float64 `json:"firstInputDelay,omitempty"`
	CumulativeLayoutShift  *float64 `json:"cumulativeLayoutShift,omitempty"`
	TimeToInteractive      *float64 `json:"timeToInteractive,omitempty"`
	ConnectionType         string   `json:"connectionType,omitempty"`
	DeviceMemory           *float64 `json:"deviceMemory,omitempty"`
}

type ErrorPayload struct {
	SessionID    string `json:"sessionId,omitempty"`
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
	ErrorStack   string `json:"errorStack,omitempty"`
	PageURL      string `json:"pageUrl,omitempty"`
	UserAgent    string `json:"userAgent,omitempty"`
}

func (c *Client) PageView(ctx context.Context, p PageViewPayload) error {
	return c.Send(ctx, "pageview", p)
}

func (c *Client) Event(ctx context.Context, p EventPayload) error {
	return c.Send(ctx, "event", p)
}

func (c *Client) Performance(ctx context.Context, p PerformancePayload) error {
	return c.Send(ctx, "performance", p)
}

func (c *Client) Error(ctx context.Context, p ErrorPayload) error {
	return c.Send(ctx, "error", p)
}

// EndSession reports the total time spent on the site.
func (c *Client) EndSession(ctx context.Context, sessionID string, spent time.Duration) error {
	return c.Send(ctx, "session-end", map[string]any{
		"sessionId":      sessionID,
		"totalTimeSpent": spent.Milliseconds(),
	})
}
