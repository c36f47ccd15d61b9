// Package phone normalizes transport identifiers into canonical phone
// numbers and resolves country and timezone hints from them.
package phone

import (
	"strings"
)

// Normalize reduces a transport identifier (JID or raw number) to digits
// only, country code included. "+52 1 55 1234 5678" and
// "5215512345678@s.whatsapp.net" normalize to the same value.
func Normalize(raw string) string {
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		raw = raw[:i]
		// Group chat JIDs carry a "-creation" suffix after the owner
		// number. Raw numbers keep their "-": it is formatting, not a
		// delimiter, and falls out with the other non-digits below.
		if j := strings.IndexByte(raw, '-'); j >= 0 {
			raw = raw[:j]
		}
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// countryCodes lists calling codes the bot recognizes, longest first so
// that e.g. 521 (Mexico mobile) wins over 52 and 1.
var countryCodes = []string{
	"521", "549", "593", "502", "503", "504", "505", "506", "507",
	"52", "54", "55", "56", "57", "58", "51", "34", "1",
}

// defaultTimezones is the built-in country code to IANA timezone table.
// The table in the field is known to be partial; deployments extend it
// through bot.timezone_overrides in the config.
var defaultTimezones = map[string]string{
	"1":   "America/New_York",
	"34":  "Europe/Madrid",
	"51":  "America/Lima",
	"52":  "America/Mexico_City",
	"521": "America/Mexico_City",
	"54":  "America/Argentina/Buenos_Aires",
	"549": "America/Argentina/Buenos_Aires",
	"55":  "America/Sao_Paulo",
	"56":  "America/Santiago",
	"57":  "America/Bogota",
	"58":  "America/Caracas",
	"502": "America/Guatemala",
	"503": "America/El_Salvador",
	"504": "America/Tegucigalpa",
	"505": "America/Managua",
	"506": "America/Costa_Rica",
	"507": "America/Panama",
	"593": "America/Guayaquil",
}

// Resolver resolves country codes and timezones for normalized numbers.
type Resolver struct {
	defaultCountry string
	overrides      map[string]string
}

// NewResolver builds a resolver. defaultCountry is the calling code
// assumed when no known prefix matches; overrides extend the built-in
// timezone table.
func NewResolver(defaultCountry string, overrides map[string]string) *Resolver {
	return &Resolver{
		defaultCountry: defaultCountry,
		overrides:      overrides,
	}
}

// Country returns the calling code detected from a normalized number,
// falling back to the resolver's default.
func (r *Resolver) Country(number string) string {
	for _, cc := range countryCodes {
		if strings.HasPrefix(number, cc) {
			return cc
		}
	}
	return r.defaultCountry
}

// Timezone returns the IANA timezone for a normalized number. Overrides
// take precedence over the built-in table; unknown codes fall back to the
// default country's zone, then to UTC.
func (r *Resolver) Timezone(number string) string {
	cc := r.Country(number)
	if tz, ok := r.overrides[cc]; ok {
		return tz
	}
	if tz, ok := defaultTimezones[cc]; ok {
		return tz
	}
	if tz, ok := defaultTimezones[r.defaultCountry]; ok {
		return tz
	}
	return "UTC"
}
