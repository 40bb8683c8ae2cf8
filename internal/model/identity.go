package model

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/sells-group/lead-intel/internal/mention"
)

// NormalizeTaxID strips formatting from a CNPJ ("11.222.333/0001-81") and
// returns only its digits.
func NormalizeTaxID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	cnpjWeights1 = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidCNPJ checks length and both check digits of a normalized CNPJ.
// Repeated-digit sequences are rejected.
func ValidCNPJ(digits string) bool {
	if len(digits) != 14 {
		return false
	}
	if strings.Count(digits, digits[:1]) == 14 {
		return false
	}
	d := make([]int, 14)
	for i, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
		d[i] = int(r - '0')
	}
	return cnpjDigit(d[:12], cnpjWeights1) == d[12] && cnpjDigit(d[:13], cnpjWeights2) == d[13]
}

func cnpjDigit(d, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += d[i] * w
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

// NormalizeDomain reduces a URL or host to its registrable domain
// ("https://www.loja.acme.com.br/x" -> "acme.com.br"). Unparseable input
// yields "".
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimSuffix(u.Hostname(), ".")
	if !strings.Contains(host, ".") {
		return ""
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

// NormalizeName folds a company name for identity matching.
func NormalizeName(s string) string {
	return mention.Normalize(s)
}
