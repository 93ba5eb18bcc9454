package instrument

import "strings"

// Instrument is a canonical tracked symbol (e.g. BTC).
type Instrument string

const (
	BTC Instrument = "BTC"
	ETH Instrument = "ETH"
)

// Canonical is the closed set of instruments the tracker knows about.
var Canonical = []Instrument{BTC, ETH}

// aliases maps every accepted spelling, including legacy exchange-suffixed
// forms, to its canonical instrument.
var aliases = map[string]Instrument{
	"BTC":     BTC,
	"ETH":     ETH,
	"BTC_USD": BTC,
	"ETH_USD": ETH,
}

// Normalize resolves a ticker string to its canonical instrument. The second
// return value reports whether the input was recognised.
func Normalize(ticker string) (Instrument, bool) {
	inst, ok := aliases[ticker]
	return inst, ok
}

// IndexName returns the Deribit index-name form of the instrument,
// e.g. BTC -> btc_usd.
func (i Instrument) IndexName() string {
	return strings.ToLower(string(i)) + "_usd"
}

func (i Instrument) String() string {
	return string(i)
}
