// Package currency provides display formatting for monetary amounts in
// the user's configured currency. Pure formatting, no arithmetic.
package currency

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type info struct {
	symbol   string
	decimals int
}

var currencies = map[string]info{
	"USD": {"$", 2},
	"EUR": {"€", 2},
	"GBP": {"£", 2},
	"JPY": {"¥", 0},
	"CAD": {"CA$", 2},
	"AUD": {"A$", 2},
	"CHF": {"CHF ", 2},
	"CNY": {"CN¥", 2},
	"INR": {"₹", 2},
	"KRW": {"₩", 0},
	"SEK": {"kr ", 2},
	"NOK": {"kr ", 2},
	"BRL": {"R$", 2},
	"MXN": {"MX$", 2},
}

// SupportedCurrencies lists the ISO codes the formatter understands,
// sorted.
func SupportedCurrencies() []string {
	out := make([]string, 0, len(currencies))
	for code := range currencies {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Symbol returns the display symbol for a currency code, falling back to
// the code itself for unknown currencies.
func Symbol(code string) string {
	if c, ok := currencies[code]; ok {
		return strings.TrimSpace(c.symbol)
	}
	return code
}

// Formatter renders amounts in one user currency with locale-aware digit
// grouping.
type Formatter struct {
	code    string
	printer *message.Printer
}

// NewFormatter creates a formatter for the given currency code. Unknown
// codes fall back to USD.
func NewFormatter(code string) *Formatter {
	if _, ok := currencies[code]; !ok {
		code = "USD"
	}
	return &Formatter{
		code:    code,
		printer: message.NewPrinter(language.English),
	}
}

// UserCurrency returns the configured currency code.
func (f *Formatter) UserCurrency() string {
	return f.code
}

// Format renders an amount with symbol and grouping: -1234.5 -> "-$1,234.50".
func (f *Formatter) Format(amount float64) string {
	c := currencies[f.code]
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return sign + c.symbol + f.FormatAmount(amount)
}

// FormatAmount renders an amount with grouping but no symbol.
func (f *Formatter) FormatAmount(amount float64) string {
	c := currencies[f.code]
	verb := "%." + strconv.Itoa(c.decimals) + "f"
	return f.printer.Sprintf(verb, amount)
}

// FormatCompact renders an abbreviated amount for tight UI: 1234.5 ->
// "$1.2K". Amounts under a thousand fall back to Format.
func (f *Formatter) FormatCompact(amount float64) string {
	c := currencies[f.code]
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	abs := math.Abs(amount)
	switch {
	case abs >= 1e9:
		return sign + c.symbol + trimZero(fmt.Sprintf("%.1f", amount/1e9)) + "B"
	case abs >= 1e6:
		return sign + c.symbol + trimZero(fmt.Sprintf("%.1f", amount/1e6)) + "M"
	case abs >= 1e3:
		return sign + c.symbol + trimZero(fmt.Sprintf("%.1f", amount/1e3)) + "K"
	default:
		return sign + c.symbol + f.FormatAmount(amount)
	}
}

// Symbol returns the formatter currency's symbol.
func (f *Formatter) Symbol() string {
	return Symbol(f.code)
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}
