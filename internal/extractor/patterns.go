package extractor

import (
	"net/mail"
	"net/netip"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"

	"github.com/pbaille/osintdeck/internal/domain"
)

// pattern ties a kind to its matcher, validator and normalizer
type pattern struct {
	kind      domain.Kind
	re        *regexp.Regexp
	validate  func(tlds TLDValidator, s string) bool
	normalize func(s string) string

	// bounded drops matches glued to surrounding address characters, for
	// patterns that cannot use \b because they may start or end with ':'
	bounded bool
	// exact is re anchored at both ends, used by DetectType
	exact *regexp.Regexp
}

func init() {
	for i := range patterns {
		patterns[i].exact = regexp.MustCompile(`^(?:` + patterns[i].re.String() + `)$`)
	}
}

// find returns every candidate match for p in text
func (p pattern) find(text string) []string {
	if !p.bounded {
		return p.re.FindAllString(text, -1)
	}
	var out []string
	for _, loc := range p.re.FindAllStringIndex(text, -1) {
		if standsAlone(text, loc[0], loc[1]) {
			out = append(out, text[loc[0]:loc[1]])
		}
	}
	return out
}

// standsAlone reports whether text[start:end] is not part of a longer
// word, address or dotted token. A trailing '.' ending a sentence is allowed.
func standsAlone(text string, start, end int) bool {
	if start > 0 {
		if b := text[start-1]; isWordByte(b) || b == ':' || b == '.' {
			return false
		}
	}
	if end < len(text) {
		b := text[end]
		if isWordByte(b) || b == ':' {
			return false
		}
		if b == '.' && end+1 < len(text) && isWordByte(text[end+1]) {
			return false
		}
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// patterns is iterated in declaration order by both Parse and DetectType
var patterns = []pattern{
	{
		kind:      domain.KindEmail,
		re:        regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		validate:  validEmail,
		normalize: lowerTrim,
	},
	{
		kind:      domain.KindIP,
		re:        regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		validate:  validIP,
		normalize: strings.TrimSpace,
	},
	{
		kind:      domain.KindIP,
		re:        regexp.MustCompile(`(?:[0-9a-fA-F]{0,4}:){2,7}[0-9a-fA-F]{0,4}`),
		validate:  validIPv6,
		normalize: strings.TrimSpace,
		bounded:   true,
	},
	{
		kind:      domain.KindURL,
		re:        regexp.MustCompile(`(?i)\b(?:https?|ftp)://[^\s<>"']+`),
		validate:  validURL,
		normalize: strings.TrimSpace,
	},
	{
		kind:      domain.KindDomain,
		re:        regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+(?:xn--[a-zA-Z0-9-]{1,59}|[a-zA-Z]{2,63})\b`),
		validate:  validDomain,
		normalize: lowerTrim,
	},
	{
		kind:      domain.KindHash,
		re:        regexp.MustCompile(`\b[a-fA-F0-9]{32,64}\b`),
		validate:  validHash,
		normalize: lowerTrim,
	},
	{
		kind:      domain.KindASN,
		re:        regexp.MustCompile(`(?i)\bAS\d{1,10}\b`),
		validate:  validASN,
		normalize: upperTrim,
	},
	{
		kind:      domain.KindPhone,
		re:        regexp.MustCompile(`\+?\(?\d[\d\s\-()]{8,20}\d`),
		validate:  validPhone,
		normalize: compactPhone,
	},
	{
		kind:      domain.KindUsername,
		re:        regexp.MustCompile(`@[A-Za-z0-9_]{1,15}\b`),
		validate:  validUsername,
		normalize: strings.TrimSpace,
	},
	{
		kind:      domain.KindWallet,
		re:        regexp.MustCompile(`\b(?:[13][a-km-zA-HJ-NP-Z1-9]{25,34}|bc1[a-zA-HJ-NP-Z0-9]{36,56})\b`),
		validate:  validWallet,
		normalize: strings.TrimSpace,
	},
}

// priority orders kinds for overlap resolution, lower wins
var priority = map[domain.Kind]int{
	domain.KindURL:      1,
	domain.KindEmail:    2,
	domain.KindIP:       3,
	domain.KindDomain:   4,
	domain.KindHash:     5,
	domain.KindASN:      6,
	domain.KindPhone:    7,
	domain.KindUsername: 8,
	domain.KindWallet:   9,
}

func priorityOf(k domain.Kind) int {
	if p, ok := priority[k]; ok {
		return p
	}
	return 99
}

var (
	schemeRe   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
	asnRe      = regexp.MustCompile(`(?i)^AS\d{1,10}$`)
	usernameRe = regexp.MustCompile(`^@[A-Za-z0-9_]{1,15}$`)
	legacyRe   = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	bech32Re   = regexp.MustCompile(`(?i)^bc1[ac-hj-np-z02-9]{36,56}$`)
)

func validEmail(_ TLDValidator, s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && addr.Name == ""
}

func validIP(_ TLDValidator, s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// validIPv6 rejects bare separators such as "::" that parse as the
// unspecified address but carry no digits
func validIPv6(tlds TLDValidator, s string) bool {
	if !strings.ContainsAny(s, "0123456789abcdefABCDEF") {
		return false
	}
	return validIP(tlds, s)
}

func validURL(_ TLDValidator, s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

func validDomain(tlds TLDValidator, s string) bool {
	if schemeRe.MatchString(s) || validIP(tlds, s) {
		return false
	}
	host, err := idna.Lookup.ToASCII(strings.TrimSuffix(s, "."))
	if err != nil || len(host) > 253 || !strings.Contains(host, ".") {
		return false
	}
	tld := host[strings.LastIndex(host, ".")+1:]
	return tlds != nil && tlds.IsValid(tld)
}

func validHash(_ TLDValidator, s string) bool {
	switch len(s) {
	case 32, 40, 64:
	default:
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func validASN(_ TLDValidator, s string) bool {
	return asnRe.MatchString(s)
}

// validPhone counts what is left after stripping everything but digits and '+'
func validPhone(_ TLDValidator, s string) bool {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' || r == '+' {
			n++
		}
	}
	return n >= 10 && n <= 15
}

func validUsername(_ TLDValidator, s string) bool {
	return usernameRe.MatchString(s)
}

func validWallet(_ TLDValidator, s string) bool {
	return legacyRe.MatchString(s) || bech32Re.MatchString(s)
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func upperTrim(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func compactPhone(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
