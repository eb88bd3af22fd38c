package market

import "fmt"

// Candle 为单根 OHLCV K 线，时间戳为毫秒。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// ValidateWindow 校验窗口时间戳严格递增。允许缺口，不允许乱序或重复。
func ValidateWindow(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime <= candles[i-1].OpenTime {
			return fmt.Errorf("candle window out of order at index %d: %d <= %d",
				i, candles[i].OpenTime, candles[i-1].OpenTime)
		}
	}
	return nil
}
