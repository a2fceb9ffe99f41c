package candles

// ColumnNames is the fixed ten-column schema of the tabular view, in
// projection order.
var ColumnNames = [10]string{
	"open_time",
	"open",
	"high",
	"low",
	"close",
	"volume",
	"quote_volume",
	"trade_count",
	"taker_buy_base",
	"taker_buy_quote",
}

// Table is the columnar projection of a window snapshot. open_time and
// trade_count stay integral columns; every other column is float64.
type Table struct {
	OpenTime      []int64
	Open          []float64
	High          []float64
	Low           []float64
	Close         []float64
	Volume        []float64
	QuoteVolume   []float64
	TradeCount    []uint64
	TakerBuyBase  []float64
	TakerBuyQuote []float64
}

// TableOf projects a bar sequence into the fixed schema. Empty input
// yields an empty table with the same shape.
func TableOf(bars []Bar) Table {
	n := len(bars)
	t := Table{
		OpenTime:      make([]int64, n),
		Open:          make([]float64, n),
		High:          make([]float64, n),
		Low:           make([]float64, n),
		Close:         make([]float64, n),
		Volume:        make([]float64, n),
		QuoteVolume:   make([]float64, n),
		TradeCount:    make([]uint64, n),
		TakerBuyBase:  make([]float64, n),
		TakerBuyQuote: make([]float64, n),
	}
	for i, b := range bars {
		t.OpenTime[i] = b.OpenTime
		t.Open[i] = b.Open
		t.High[i] = b.High
		t.Low[i] = b.Low
		t.Close[i] = b.Close
		t.Volume[i] = b.Volume
		t.QuoteVolume[i] = b.QuoteVolume
		t.TradeCount[i] = b.TradeCount
		t.TakerBuyBase[i] = b.TakerBuyBase
		t.TakerBuyQuote[i] = b.TakerBuyQuote
	}
	return t
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.OpenTime) }

// Row returns row i in projection order, matching Bar.Row.
func (t Table) Row(i int) []any {
	return []any{
		t.OpenTime[i],
		t.Open[i],
		t.High[i],
		t.Low[i],
		t.Close[i],
		t.Volume[i],
		t.QuoteVolume[i],
		float64(t.TradeCount[i]),
		t.TakerBuyBase[i],
		t.TakerBuyQuote[i],
	}
}

// Bar reconstructs row i as a Bar.
func (t Table) Bar(i int) Bar {
	return Bar{
		OpenTime:      t.OpenTime[i],
		Open:          t.Open[i],
		High:          t.High[i],
		Low:           t.Low[i],
		Close:         t.Close[i],
		Volume:        t.Volume[i],
		QuoteVolume:   t.QuoteVolume[i],
		TradeCount:    t.TradeCount[i],
		TakerBuyBase:  t.TakerBuyBase[i],
		TakerBuyQuote: t.TakerBuyQuote[i],
	}
}
