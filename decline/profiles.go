package decline

import "strings"

// SiteProfile holds the selectors tried first on a known site.
type SiteProfile struct {
	Name string
	// Hosts are hostname substrings; any match selects the profile.
	Hosts     []string
	Selectors []string
}

// Match reports whether hostname belongs to the profile.
func (p SiteProfile) Match(hostname string) bool {
	h := strings.ToLower(hostname)
	for _, s := range p.Hosts {
		if strings.Contains(h, s) {
			return true
		}
	}
	return false
}

// Profiles is checked in order; the first match wins.
var Profiles = []SiteProfile{
	{
		Name:  "bbc",
		Hosts: []string{"bbc."},
		Selectors: []string{
			`button[data-testid="banner-reject"]`,
			`button[data-testid="reject-all"]`,
			`button[class*="reject"]`,
			`button[id*="reject"]`,
			`[data-bbc-container="cookie"] button:last-child`,
			`.fc-cta-do-not-consent`,
			`.fc-button-reject`,
			`#fc-ccpa-link`,
			`.cookie-banner button[data-testid]`,
			`.gdpr-banner button:not([data-testid*="accept"])`,
		},
	},
	{
		Name:  "cnn",
		Hosts: []string{"cnn."},
		Selectors: []string{
			`.optanon-reject-all`,
			`#onetrust-reject-all-handler`,
			`.ot-pc-refuse-all`,
			`#onetrust-pc-btn-handler`,
		},
	},
	{
		Name:  "guardian",
		Hosts: []string{"guardian", "theguardian"},
		Selectors: []string{
			`[data-link-name="reject all"]`,
			`button[data-cy="reject-all"]`,
			`.dcr-1isob8f button:last-child`,
		},
	},
}

// ProfileFor returns the profile matching hostname.
func ProfileFor(hostname string) (SiteProfile, bool) {
	for _, p := range Profiles {
		if p.Match(hostname) {
			return p, true
		}
	}
	return SiteProfile{}, false
}

// GenericSelectors is the ladder used on every site.
var GenericSelectors = []string{
	`button[data-testid*="reject"]`,
	`button[data-cy*="reject"]`,
	`button[data-qa*="reject"]`,
	`button[data-role*="reject"]`,
	`button[data-testid*="decline"]`,
	`button[data-cy*="decline"]`,

	`button[id*="reject"]`,
	`button[class*="reject"]`,
	`button[id*="decline"]`,
	`button[class*="decline"]`,
	`button[id*="refuse"]`,
	`button[class*="refuse"]`,

	`button[aria-label*="reject"]`,
	`button[aria-label*="decline"]`,
	`button[aria-label*="refuse"]`,

	`.optanon-alert-box-wrapper button:last-child`,
	`#onetrust-banner-sdk button:last-child`,
	`.cookie-consent button:last-child`,
	`.gdpr-consent button:last-child`,

	`[class*="cookie"] button:last-child`,
	`[id*="cookie"] button:last-child`,
	`.consent-banner button:last-child`,
}

// TextScanSelector lists every clickable candidate for the text scan.
const TextScanSelector = `button, a, [role="button"], [onclick]`

// ContainerSelectors are force-hidden by the suppress fallback.
var ContainerSelectors = []string{
	`[data-bbc-container="cookie"]`,
	`.fc-consent-root`,
	`.fc-dialog-container`,

	`#cookie-banner`, `#cookie-notice`, `#cookie-consent`,
	`.cookie-banner`, `.cookie-notice`, `.cookie-consent`,
	`.gdpr-banner`, `.gdpr-consent`, `.consent-banner`,
	`#onetrust-banner-sdk`, `.optanon-alert-box-wrapper`,
	`.ot-sdk-container`, `.ot-fade-in`,

	`[class*="cookie"]`, `[id*="cookie"]`,
	`[class*="consent"]`, `[id*="consent"]`,
	`[class*="gdpr"]`, `[id*="gdpr"]`,
}
