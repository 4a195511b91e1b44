package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatAmount renders an amount held in minor units, e.g. FormatAmount("IDR", 123450) == "IDR 1,234.50".
func FormatAmount(currency string, minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s %s%s.%02d", strings.ToUpper(currency), sign, formatThousand(minor/100), minor%100)
}

// PercentOf returns floor(amount * pct / 100) for non-negative inputs.
func PercentOf(amount int64, pct int) int64 {
	return amount * int64(pct) / 100
}

func formatThousand(n int64) string {
	if n == 0 {
		return "0"
	}
	str := strconv.FormatInt(n, 10)
	var out strings.Builder
	for i, c := range str {
		if i != 0 && (len(str)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(c)
	}
	return out.String()
}
