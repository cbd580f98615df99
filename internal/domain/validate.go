package domain

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Amount columns are numeric(20,2).
const AmountScale = 2

// MaxAmount is the smallest value that no longer fits numeric(20,2).
var MaxAmount = decimal.New(1, 20-AmountScale)

var msisdnRE = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

// supportedCurrencies are the ISO-4217 codes the MoMo markets settle in.
var supportedCurrencies = map[string]struct{}{
	"XAF": {}, "XOF": {}, "UGX": {}, "GHS": {}, "ZAR": {}, "NGN": {},
	"ZMW": {}, "RWF": {}, "TZS": {}, "KES": {}, "ETB": {}, "MWK": {},
	"MZN": {}, "USD": {}, "EUR": {}, "GBP": {},
}

// NormalizePhone strips whitespace from an MSISDN.
func NormalizePhone(phone string) string {
	return strings.Join(strings.Fields(phone), "")
}

// ValidPhone reports whether phone (after NormalizePhone) is an MSISDN of
// 8 to 15 digits with an optional leading '+'.
func ValidPhone(phone string) bool {
	return msisdnRE.MatchString(NormalizePhone(phone))
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SupportedCurrency reports whether code is a valid ISO-4217 code that the
// gateway accepts.
func SupportedCurrency(code string) bool {
	code = NormalizeCurrency(code)
	if _, err := currency.ParseISO(code); err != nil {
		return false
	}
	_, ok := supportedCurrencies[code]
	return ok
}

// ValidAmount reports whether d is positive, has no more than two decimal
// places and fits the amount columns. Trailing zeros ("10.500") are fine.
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.LessThan(MaxAmount) && d.Equal(d.Truncate(AmountScale))
}
