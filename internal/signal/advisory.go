package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"sable/internal/decision"
	"sable/internal/market"
)

// advisorySchema 约束顾问服务的回包形态。顾问模型有时会多吐字段或把数字
// 写成字符串，先用 gjson 提取再走 schema 校验。
const advisorySchema = `{
	"type": "object",
	"required": ["signal", "confidence_score"],
	"properties": {
		"signal": {"type": "string", "enum": ["BUY", "SELL", "HOLD"]},
		"confidence_score": {"type": "number", "minimum": 0, "maximum": 1},
		"reason": {"type": "string"}
	}
}`

var advisoryCompiled = jsonschema.MustCompileString("advisory.json", advisorySchema)

// Advisory 调用顾问模型服务：输入紧凑的市场摘要，输出 BUY/SELL/HOLD 建议。
// 在 final-authority 模式下它的建议拥有否决权，但服务本身只是另一个 Predictor。
type Advisory struct {
	url    string
	model  string
	client *http.Client
}

func NewAdvisory(url, model string, timeout time.Duration) *Advisory {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Advisory{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (a *Advisory) Name() string { return decision.OriginAdvisory }

type advisoryRequest struct {
	Model   string          `json:"model,omitempty"`
	Symbol  string          `json:"symbol"`
	Summary advisorySummary `json:"summary"`
}

type advisorySummary struct {
	Price       float64            `json:"price"`
	Features    map[string]float64 `json:"features"`
	WindowSize  int                `json:"window_size"`
	Degraded    bool               `json:"degraded"`
	GeneratedAt string             `json:"generated_at"`
}

func (a *Advisory) Predict(ctx context.Context, symbol string, view market.View) (decision.Prediction, error) {
	payload := advisoryRequest{
		Model:  a.model,
		Symbol: symbol,
		Summary: advisorySummary{
			Price:       view.Price,
			Features:    featureMap(view.Indicators),
			WindowSize:  len(view.Candles),
			Degraded:    view.Degraded,
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return decision.Prediction{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return decision.Prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return decision.Prediction{}, fmt.Errorf("advisory: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decision.Prediction{}, fmt.Errorf("advisory: read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return decision.Prediction{}, fmt.Errorf("advisory: status=%d", resp.StatusCode)
	}
	return ParseAdvisory(string(raw))
}

// ParseAdvisory 宽松解析顾问回包：先定位 JSON 对象，再做 schema 校验。
func ParseAdvisory(raw string) (decision.Prediction, error) {
	raw = strings.TrimSpace(raw)
	obj := extractObject(raw)
	if obj == "" {
		return decision.Prediction{}, fmt.Errorf("advisory: no JSON object in response")
	}
	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return decision.Prediction{}, fmt.Errorf("advisory: %w", err)
	}
	if err := advisoryCompiled.Validate(doc); err != nil {
		return decision.Prediction{}, fmt.Errorf("advisory: schema: %w", err)
	}
	parsed := gjson.Parse(obj)
	dir, _ := normalizeDirection(parsed.Get("signal").String())
	return decision.Prediction{
		Direction:  dir,
		Confidence: parsed.Get("confidence_score").Float(),
		Rationale:  strings.TrimSpace(parsed.Get("reason").String()),
	}, nil
}

// extractObject 从可能夹杂说明文字的回包里取出第一个顶层 JSON 对象。
func extractObject(raw string) string {
	if gjson.Valid(raw) && gjson.Parse(raw).IsObject() {
		return raw
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	candidate := raw[start : end+1]
	if gjson.Valid(candidate) {
		return candidate
	}
	return ""
}
