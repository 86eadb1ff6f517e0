package insight

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Visualization kinds the reply may request.
const (
	VizLine    = "line"
	VizBar     = "bar"
	VizScatter = "scatter"
	VizNone    = "none"
)

const systemPrompt = "You are a senior banking analyst. Use only the provided metrics."

// MetricContext is one metric's summary handed to the analyst.
type MetricContext struct {
	Code    string   `json:"code"`
	Label   string   `json:"label"`
	Current *float64 `json:"current,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Mean    *float64 `json:"mean,omitempty"`
}

// Context is the data summary the analyst may reason over.
type Context struct {
	Period  string          `json:"period"`
	Metrics []MetricContext `json:"metrics"`
}

// Codes returns the available metric codes in context order.
func (c *Context) Codes() []string {
	codes := make([]string, 0, len(c.Metrics))
	for _, m := range c.Metrics {
		codes = append(codes, m.Code)
	}
	return codes
}

// Insight is the parsed analyst reply. The zero value means "no
// analysis available".
type Insight struct {
	Analysis      string   `json:"analysis"`
	Visualization string   `json:"visualization,omitempty"`
	Metrics       []string `json:"metrics,omitempty"`
}

// Empty reports whether the reply yielded nothing displayable.
func (i Insight) Empty() bool { return i.Analysis == "" }

// Analyst runs analysis requests through the completion client.
type Analyst struct {
	client      *Client
	maxRetries  int
	retryDelay  time.Duration
	temperature float64
	maxTokens   int
}

// AnalystOption configures an analyst.
type AnalystOption func(*Analyst)

// WithTemperature sets the completion sampling temperature.
func WithTemperature(t float64) AnalystOption {
	return func(a *Analyst) {
		if t > 0 {
			a.temperature = t
		}
	}
}

// WithMaxTokens caps the completion reply length.
func WithMaxTokens(n int) AnalystOption {
	return func(a *Analyst) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// NewAnalyst creates an analyst over the given client.
func NewAnalyst(client *Client, opts ...AnalystOption) *Analyst {
	a := &Analyst{
		client:      client,
		maxRetries:  2,
		retryDelay:  time.Second,
		temperature: 0.3,
		maxTokens:   500,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze sends the query with the fixed instruction template and
// parses the reply. A reply that does not match the expected shape
// yields an empty Insight, not an error; errors are reserved for
// transport failures after retries.
func (a *Analyst) Analyze(ctx context.Context, query string, ictx Context) (Insight, error) {
	if len(ictx.Metrics) == 0 {
		return Insight{}, nil
	}
	prompt := buildPrompt(query, ictx)

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			delay := a.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return Insight{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		reply, err := a.client.Chat(ctx, systemPrompt, prompt, a.temperature, a.maxTokens)
		if err == nil {
			return ParseReply(reply, ictx.Codes()), nil
		}
		lastErr = err
	}
	return Insight{}, lastErr
}

// buildPrompt renders the fixed instruction template. The reply format
// is contractual: parsing matches the three literal prefixes exactly.
func buildPrompt(query string, ictx Context) string {
	var metrics strings.Builder
	for _, m := range ictx.Metrics {
		name := m.Label
		if name == "" {
			name = m.Code
		}
		fmt.Fprintf(&metrics, "- %s: %s\n", m.Code, name)
	}

	return fmt.Sprintf(`Analyze banking data with these metrics:
%s
User query: %s

Respond EXACTLY in this format:
ANALYSIS: [text analysis using only available metrics]
VISUALIZATION: [line|bar|scatter|none]
METRICS: [comma-separated codes from: %s]
`, metrics.String(), query, strings.Join(ictx.Codes(), ", "))
}

// ParseReply extracts the three contractual lines from a reply. Any
// reply without an ANALYSIS line yields the zero Insight. Unknown
// visualization kinds and metric codes outside the available set are
// dropped rather than propagated.
func ParseReply(reply string, available []string) Insight {
	avail := make(map[string]bool, len(available))
	for _, c := range available {
		avail[strings.ToLower(c)] = true
	}

	var out Insight
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "ANALYSIS:"):
			out.Analysis = strings.TrimSpace(strings.TrimPrefix(line, "ANALYSIS:"))
		case strings.HasPrefix(line, "VISUALIZATION:"):
			viz := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "VISUALIZATION:")))
			switch viz {
			case VizLine, VizBar, VizScatter, VizNone:
				out.Visualization = viz
			}
		case strings.HasPrefix(line, "METRICS:"):
			for _, m := range strings.Split(strings.TrimPrefix(line, "METRICS:"), ",") {
				code := strings.ToLower(strings.TrimSpace(m))
				if code != "" && avail[code] {
					out.Metrics = append(out.Metrics, code)
				}
			}
		}
	}
	if out.Empty() {
		return Insight{}
	}
	return out
}
