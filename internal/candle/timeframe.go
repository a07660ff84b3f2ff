package candle

// Timeframe is one fixed aggregation window.
type Timeframe struct {
	Label string
	Width int64 // bucket width in seconds
}

// Timeframes is the fixed, enumerated set of aggregation windows. Every
// trade updates one bar per entry.
var Timeframes = []Timeframe{
	{Label: "1m", Width: 60},
	{Label: "5m", Width: 300},
	{Label: "15m", Width: 900},
	{Label: "1h", Width: 3600},
	{Label: "4h", Width: 14400},
	{Label: "1D", Width: 86400},
}

// FromLabel resolves a timeframe by its label.
func FromLabel(label string) (Timeframe, bool) {
	for _, tf := range Timeframes {
		if tf.Label == label {
			return tf, true
		}
	}
	return Timeframe{}, false
}

// FromResolution maps a TradingView resolution string onto a timeframe.
func FromResolution(res string) (Timeframe, bool) {
	switch res {
	case "1":
		return FromLabel("1m")
	case "5":
		return FromLabel("5m")
	case "15":
		return FromLabel("15m")
	case "60":
		return FromLabel("1h")
	case "240":
		return FromLabel("4h")
	case "1D", "D":
		return FromLabel("1D")
	default:
		return Timeframe{}, false
	}
}

// Resolutions lists the TradingView resolution strings this service supports,
// in ascending width order.
func Resolutions() []string {
	return []string{"1", "5", "15", "60", "240", "1D"}
}
