package entitlements

import (
	"math"
	"strconv"
)

// Fixed INR to USD conversion baked in at catalog definition time:
// a 1,901 rupee charge displays as roughly 21 dollars.
const inrToUSD = 20.86 / 1901

// DisplayPriceINR formats the upgrade charge in whole rupees with Indian
// digit grouping, e.g. "1,901" for the pro-rata Lite to Pro fee.
func DisplayPriceINR(from, to Plan) string {
	paise := ChargeAmount(from, to)
	rupees := int64(math.Round(float64(paise) / 100))
	return groupIndian(rupees)
}

// DisplayPriceUSD formats the upgrade charge in whole dollars, e.g. "21".
func DisplayPriceUSD(from, to Plan) string {
	paise := ChargeAmount(from, to)
	rupees := float64(paise) / 100
	dollars := int64(math.Round(rupees * inrToUSD))
	return strconv.FormatInt(dollars, 10)
}

// groupIndian renders n with the Indian numbering system: the last three
// digits form one group, every two digits before that another.
func groupIndian(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	head, tail := s[:len(s)-3], s[len(s)-3:]
	out := tail
	for len(head) > 2 {
		out = head[len(head)-2:] + "," + out
		head = head[:len(head)-2]
	}
	return head + "," + out
}
