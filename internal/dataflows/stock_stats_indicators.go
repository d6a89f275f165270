package dataflows

import (
	"bytes"
	"encoding/csv"
	"math"
	"strconv"

	"github.com/dyike/agenttrader/models"
)

// IndicatorColumns are the indicators reported by the technical indicator tool.
var IndicatorColumns = []string{"macd", "rsi_14", "boll", "boll_ub", "boll_lb", "close_50_sma", "close_200_sma"}

// IndicatorRow holds all indicator values for one trading day.
type IndicatorRow struct {
	Date   string
	Values map[string]float64
}

// CalculateIndicators computes every column of IndicatorColumns for each bar.
// Rolling windows shorter than their period use the bars available so far.
func CalculateIndicators(bars []models.PriceBar) []IndicatorRow {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i], _ = b.Close.Float64()
	}

	ema12 := ema(closes, 12)
	ema26 := ema(closes, 26)
	rsi := wilderRSI(closes, 14)

	rows := make([]IndicatorRow, len(bars))
	for i := range bars {
		boll, std := rollingMeanStd(closes, i, 20)
		rows[i] = IndicatorRow{
			Date: bars[i].Date,
			Values: map[string]float64{
				"macd":          ema12[i] - ema26[i],
				"rsi_14":        rsi[i],
				"boll":          boll,
				"boll_ub":       boll + 2*std,
				"boll_lb":       boll - 2*std,
				"close_50_sma":  sma(closes, i, 50),
				"close_200_sma": sma(closes, i, 200),
			},
		}
	}
	return rows
}

// IndicatorsCSV renders the last n rows as CSV with a Date column first.
func IndicatorsCSV(rows []IndicatorRow, n int) string {
	if n > 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(append([]string{"Date"}, IndicatorColumns...))
	for _, row := range rows {
		record := []string{row.Date}
		for _, col := range IndicatorColumns {
			v := row.Values[col]
			if math.IsNaN(v) {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(v, 'f', 4, 64))
		}
		_ = w.Write(record)
	}
	w.Flush()
	return buf.String()
}

// PriceCSV renders bars as Date,Open,High,Low,Close,Volume.
func PriceCSV(bars []models.PriceBar) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Date", "Open", "High", "Low", "Close", "Volume"})
	for _, b := range bars {
		_ = w.Write([]string{
			b.Date,
			b.Open.StringFixed(2),
			b.High.StringFixed(2),
			b.Low.StringFixed(2),
			b.Close.StringFixed(2),
			strconv.FormatInt(b.Volume, 10),
		})
	}
	w.Flush()
	return buf.String()
}

func sma(values []float64, i, period int) float64 {
	mean, _ := rollingMeanStd(values, i, period)
	return mean
}

func rollingMeanStd(values []float64, i, period int) (float64, float64) {
	start := i - period + 1
	if start < 0 {
		start = 0
	}
	window := values[start : i+1]

	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(len(window))

	var sq float64
	for _, v := range window {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(window)))
}

func ema(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// wilderRSI uses Wilder smoothing; the first bar has no change and is NaN.
func wilderRSI(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	out[0] = math.NaN()

	alpha := 1 / float64(period)
	var avgGain, avgLoss float64
	for i := 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := math.Max(change, 0), math.Max(-change, 0)
		if i == 1 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain = alpha*gain + (1-alpha)*avgGain
			avgLoss = alpha*loss + (1-alpha)*avgLoss
		}

		switch {
		case avgLoss == 0 && avgGain == 0:
			out[i] = 50
		case avgLoss == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+avgGain/avgLoss)
		}
	}
	return out
}
