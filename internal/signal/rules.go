package signal

type facts struct {
	uptrend, downtrend         bool
	emaCrossUp, emaCrossDown   bool
	macdBullish, macdBearish   bool
	macdCrossUp, macdCrossDown bool
	rsi, overbought, oversold  float64
}

type rule struct {
	signal     Signal
	confidence float64
	reason     string
	match      func(facts) bool
}

// rules 按顺序匹配：买入规则优先于卖出规则，同方向内强信号优先。
var rules = []rule{
	{Buy, 0.80, "EMA cross up + MACD bullish", func(f facts) bool {
		return f.emaCrossUp && f.rsi < f.overbought && f.macdBullish
	}},
	{Buy, 0.65, "Uptrend + MACD cross up", func(f facts) bool {
		return f.uptrend && f.macdCrossUp && f.rsi < 60
	}},
	{Buy, 0.65, "Oversold MACD cross up", func(f facts) bool {
		return f.macdCrossUp && f.rsi < 45
	}},
	{Buy, 0.60, "Uptrend + MACD bullish", func(f facts) bool {
		return f.uptrend && f.macdBullish && f.rsi < 55
	}},
	{Buy, 0.60, "Deep oversold + MACD bullish", func(f facts) bool {
		return f.macdBullish && f.rsi < 35 && !f.downtrend
	}},
	{Sell, 0.80, "EMA cross down + MACD bearish", func(f facts) bool {
		return f.emaCrossDown && f.rsi > f.oversold && f.macdBearish
	}},
	{Sell, 0.65, "Downtrend + MACD cross down", func(f facts) bool {
		return f.downtrend && f.macdCrossDown && f.rsi > 40
	}},
	{Sell, 0.65, "Overbought MACD cross down", func(f facts) bool {
		return f.macdCrossDown && f.rsi > 55
	}},
	{Sell, 0.60, "Downtrend + MACD bearish", func(f facts) bool {
		return f.downtrend && f.macdBearish && f.rsi > 45
	}},
	{Sell, 0.60, "Overbought + MACD bearish", func(f facts) bool {
		return f.macdBearish && f.rsi > 65 && !f.uptrend
	}},
}
