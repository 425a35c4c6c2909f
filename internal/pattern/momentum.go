package pattern

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"

	"divrec/internal/recovery"
)

// relativeStrength is Wilder's RSI over the closing prices, returning the
// value at the final bar. RSI needs period+1 observations before its first
// output exists; shorter histories leave the snapshot absent.
func relativeStrength(closes []float64, period int) recovery.Value {
	if period < 1 || len(closes) < period+1 {
		return recovery.Value{}
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	values := helper.ChanToSlice(rsi.Compute(helper.SliceToChan(closes)))
	if len(values) == 0 {
		return recovery.Value{}
	}
	return recovery.Present(values[len(values)-1])
}

// stochasticK is the raw Stochastic %K at the final bar: where the close
// sits inside the period's high-low range, 0..100. A flat range pins %K to
// the midpoint rather than leaving it undefined.
func stochasticK(bars []recovery.PriceBar, period int) recovery.Value {
	if period < 1 || len(bars) < period {
		return recovery.Value{}
	}

	window := bars[len(bars)-period:]
	lo, hi := window[0].Low, window[0].High
	for _, b := range window[1:] {
		if b.Low < lo {
			lo = b.Low
		}
		if b.High > hi {
			hi = b.High
		}
	}
	if hi == lo {
		return recovery.Present(50)
	}

	last := window[len(window)-1].Close
	return recovery.Present((last - lo) / (hi - lo) * 100)
}
