package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sable/internal/decision"
	"sable/internal/market"
)

const maxModelCloses = 120

// HTTPModel 调用一个推理服务（方向模型或盈利模型共用同一协议）：
// POST {symbol, closes, features} -> {direction, confidence, rationale}。
type HTTPModel struct {
	name   string
	url    string
	client *http.Client
}

func NewHTTPModel(name, url string, timeout time.Duration) *HTTPModel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPModel{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (m *HTTPModel) Name() string { return m.name }

type modelRequest struct {
	Symbol   string             `json:"symbol"`
	Closes   []float64          `json:"closes"`
	Features map[string]float64 `json:"features"`
}

type modelResponse struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

func (m *HTTPModel) Predict(ctx context.Context, symbol string, view market.View) (decision.Prediction, error) {
	payload := modelRequest{
		Symbol:   symbol,
		Closes:   tailCloses(view.Candles, maxModelCloses),
		Features: featureMap(view.Indicators),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return decision.Prediction{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return decision.Prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return decision.Prediction{}, fmt.Errorf("%s: %w", m.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, resp.Body)
		return decision.Prediction{}, fmt.Errorf("%s: status=%d", m.name, resp.StatusCode)
	}
	var out modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decision.Prediction{}, fmt.Errorf("%s: decode: %w", m.name, err)
	}
	dir, ok := normalizeDirection(out.Direction)
	if !ok {
		return decision.Prediction{}, fmt.Errorf("%s: unknown direction %q", m.name, out.Direction)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return decision.Prediction{}, fmt.Errorf("%s: confidence %.3f out of [0,1]", m.name, out.Confidence)
	}
	return decision.Prediction{
		Direction:  dir,
		Confidence: out.Confidence,
		Rationale:  out.Rationale,
	}, nil
}

func tailCloses(candles []market.Candle, max int) []float64 {
	if len(candles) > max {
		candles = candles[len(candles)-max:]
	}
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func featureMap(ind *market.IndicatorSnapshot) map[string]float64 {
	out := make(map[string]float64)
	if ind == nil {
		return out
	}
	put := func(key string, v market.IndicatorValue) {
		if v.Valid {
			out[key] = v.V
		}
	}
	put("rsi", ind.RSI)
	put("macd", ind.MACD)
	put("macd_hist", ind.MACDHist)
	put("adx", ind.ADX)
	put("atr", ind.ATR)
	put("obv", ind.OBV)
	put("momentum", ind.Momentum)
	put("band_pos", ind.BandPos)
	put("correlation", ind.Correlation)
	return out
}
