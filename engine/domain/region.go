package domain

import (
	"net/url"
	"strings"
)

type regionRule struct {
	code  string
	terms []string
	tlds  []string
}

var regionRules = []regionRule{
	{"ES", []string{"spain", "españa", "cte", "une"}, []string{".es"}},
	{"MX", []string{"mexico", "méxico", "conagua"}, []string{".mx"}},
	{"UK", []string{"united kingdom", "britain", "british standard"}, []string{".uk"}},
	{"EU", []string{"europe", "european", "eurocode"}, []string{".eu"}},
	{"US", []string{"united states", "usa", "u.s.", "epa", "osha"}, []string{".gov", ".us"}},
}

// DetectRegion returns a region code mentioned in text, or "".
func DetectRegion(text string) string {
	lower := strings.ToLower(text)
	for _, r := range regionRules {
		if containsAny(lower, r.terms) {
			return r.code
		}
	}
	return ""
}

// RegionFromURL infers a region from the host's top level domain, falling
// back to the text of the page.
func RegionFromURL(rawURL, text string) string {
	if u, err := url.Parse(rawURL); err == nil {
		host := strings.ToLower(u.Hostname())
		for _, r := range regionRules {
			for _, tld := range r.tlds {
				if strings.HasSuffix(host, tld) {
					return r.code
				}
			}
		}
	}
	return DetectRegion(text)
}
