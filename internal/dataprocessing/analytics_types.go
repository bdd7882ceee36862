package dataprocessing

import (
	"fmt"
)

// Window is a lag in rows (months)
type Window int

const (
	MM Window = 1
	QQ Window = 3
	YY Window = 12
)

// Windows lists the lags in bundle order
var Windows = []Window{MM, QQ, YY}

// OHLCLookback is the number of most recent percent-change rows summarized by OHLC
const OHLCLookback = 13

// Bundle sheet names
const (
	SheetRetailSales = "Retail Sales"
	IndexCategory    = "Category"
)

// OHLC columns
const (
	ColLevel = "Level"
	ColOpen  = "Open"
	ColHigh  = "High"
	ColLow   = "Low"
	ColClose = "Close"
)

// Code returns the short window code, e.g. "MM"
func (w Window) Code() string {
	switch w {
	case MM:
		return "MM"
	case QQ:
		return "QQ"
	case YY:
		return "YY"
	default:
		return fmt.Sprintf("L%d", int(w))
	}
}

// Label returns the display label, e.g. "M-M"
func (w Window) Label() string {
	switch w {
	case MM:
		return "M-M"
	case QQ:
		return "Q-Q"
	case YY:
		return "Y-Y"
	default:
		return fmt.Sprintf("%d-Period", int(w))
	}
}

// PctChangeName is the bundle name of the percent-change table
func (w Window) PctChangeName() string { return w.Label() + " Pct Change" }

// DiffName is the bundle name of the absolute-change table
func (w Window) DiffName() string { return w.Label() + " Change" }

// OHLCName is the bundle name of the OHLC summary
func (w Window) OHLCName() string { return "OHLC " + w.Code() }
