package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/decision"
)

func TestParseAdvisoryCleanJSON(t *testing.T) {
	pred, err := ParseAdvisory(`{"signal":"BUY","confidence_score":0.82,"reason":"momentum building"}`)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionBuy, pred.Direction)
	assert.Equal(t, 0.82, pred.Confidence)
	assert.Equal(t, "momentum building", pred.Rationale)
}

func TestParseAdvisoryWrappedInProse(t *testing.T) {
	raw := "Based on my analysis:\n{\"signal\":\"SELL\",\"confidence_score\":0.6}\nGood luck."
	pred, err := ParseAdvisory(raw)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSell, pred.Direction)
	assert.Equal(t, 0.6, pred.Confidence)
}

func TestParseAdvisoryHold(t *testing.T) {
	pred, err := ParseAdvisory(`{"signal":"HOLD","confidence_score":0.9}`)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionHold, pred.Direction)
}

func TestParseAdvisoryRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"no object":          "the market looks bullish",
		"missing confidence": `{"signal":"BUY"}`,
		"unknown signal":     `{"signal":"MOON","confidence_score":0.9}`,
		"confidence range":   `{"signal":"BUY","confidence_score":1.5}`,
		"confidence string":  `{"signal":"BUY","confidence_score":"high"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAdvisory(raw)
			assert.Error(t, err)
		})
	}
}

func TestExtractObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractObject(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, extractObject("text before {\"a\":1} text after"))
	assert.Empty(t, extractObject("no braces here"))
	assert.Empty(t, extractObject("{broken"))
}
