package identifier

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// MarketplaceHost is the single host every marketplace URL normalizes to.
const MarketplaceHost = "www.amazon.com"

// marketplaceLabel is the registrable label shared by every regional storefront
// (amazon.com, amazon.co.uk, amazon.de, ...).
const marketplaceLabel = "amazon"

// shortenerHosts redirect to marketplace product pages.
var shortenerHosts = map[string]bool{
	"amzn.to":   true,
	"a.co":      true,
	"amzn.eu":   true,
	"amzn.asia": true,
	"amzn.com":  true,
}

// altSubdomains are dropped during normalization.
var altSubdomains = []string{"www.", "m.", "smile.", "mobile.", "music."}

// IsShortener reports whether host is a known short-link domain.
func IsShortener(host string) bool {
	return shortenerHosts[strings.ToLower(strings.TrimPrefix(host, "www."))]
}

// IsMarketplaceHost reports whether host belongs to a regional storefront.
// Only ICANN suffixes count; private suffixes and unknown TLDs never match.
func IsMarketplaceHost(host string) bool {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	if _, icann := publicsuffix.PublicSuffix(host); !icann {
		return false
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	label, _, _ := strings.Cut(registrable, ".")
	return label == marketplaceLabel
}

// Normalize maps a marketplace URL onto one canonical form: https, the single
// marketplace host, no query string, no fragment and no trailing "ref=" path
// segment. It returns a new URL and never mutates u.
func Normalize(u *url.URL) *url.URL {
	out := *u
	out.Scheme = "https"
	out.User = nil
	out.Host = canonicalHost(u.Hostname())
	out.RawQuery = ""
	out.Fragment = ""
	out.RawFragment = ""
	out.Path = stripRefSegment(u.Path)
	out.RawPath = ""
	return &out
}

func canonicalHost(host string) string {
	host = strings.ToLower(host)
	for _, prefix := range altSubdomains {
		host = strings.TrimPrefix(host, prefix)
	}
	if IsMarketplaceHost(host) {
		return MarketplaceHost
	}
	return host
}

func stripRefSegment(path string) string {
	segments := strings.Split(path, "/")
	kept := segments[:0]
	for _, seg := range segments {
		if strings.HasPrefix(seg, "ref=") {
			break
		}
		kept = append(kept, seg)
	}
	return strings.TrimSuffix(strings.Join(kept, "/"), "/")
}
