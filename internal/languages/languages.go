package languages

import (
	"sort"

	"golang.org/x/text/language"
)

// displayNames maps the ISO 639-1 (or BCP 47) codes the addon can be
// configured with to the names shown in the Stremio configuration page.
var displayNames = map[string]string{
	"tr":      "Türkçe",
	"ar":      "العربية",
	"bg":      "Български",
	"zh":      "中文",
	"zh-Hant": "繁體中文",
	"zh-Hans": "简体中文",
	"cs":      "Čeština",
	"da":      "Dansk",
	"nl":      "Nederlands",
	"en":      "English",
	"en-GB":   "English (British)",
	"en-US":   "English (American)",
	"et":      "Eesti",
	"fi":      "Suomi",
	"fr":      "Français",
	"de":      "Deutsch",
	"el":      "Ελληνικά",
	"hu":      "Magyar",
	"id":      "Indonesia",
	"it":      "Italiano",
	"ja":      "日本語",
	"ko":      "한국어",
	"lv":      "Latviešu",
	"lt":      "Lietuvių",
	"nb":      "Norsk (Bokmål)",
	"pl":      "Polski",
	"pt":      "Português",
	"pt-BR":   "Português (Brasil)",
	"ro":      "Română",
	"ru":      "Русский",
	"sk":      "Slovenčina",
	"sl":      "Slovenščina",
	"es":      "Español",
	"sv":      "Svenska",
	"uk":      "Українська",
}

// iso6392 maps ISO 639-1 codes to the ISO 639-2/B codes OpenSubtitles
// tags its streams with.
var iso6392 = map[string]string{
	"ar": "ara",
	"bg": "bul",
	"zh": "chi",
	"cs": "cze",
	"da": "dan",
	"nl": "dut",
	"en": "eng",
	"et": "est",
	"fi": "fin",
	"fr": "fre",
	"de": "ger",
	"el": "gre",
	"hu": "hun",
	"id": "ind",
	"it": "ita",
	"ja": "jpn",
	"ko": "kor",
	"lv": "lav",
	"lt": "lit",
	"nb": "nob",
	"pl": "pol",
	"pt": "por",
	"ro": "rum",
	"ru": "rus",
	"sk": "slo",
	"sl": "slv",
	"es": "spa",
	"sv": "swe",
	"tr": "tur",
	"uk": "ukr",
}

// DisplayName returns the configuration page name for a code.
func DisplayName(code string) string {
	return displayNames[code]
}

// CodeFromDisplayName resolves the code for a configured display name.
func CodeFromDisplayName(name string) (string, bool) {
	for code, n := range displayNames {
		if n == name {
			return code, true
		}
	}
	return "", false
}

// AllDisplayNames lists every selectable language name, sorted so the
// manifest is stable across restarts.
func AllDisplayNames() []string {
	ret := make([]string, 0, len(displayNames))
	for _, name := range displayNames {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// ISO6392 converts an ISO 639-1 code to its 639-2/B form. Codes without
// a mapping (regional variants like pt-BR) are returned unchanged, which
// matches how OpenSubtitles is queried for them.
func ISO6392(iso6391 string) string {
	if code, ok := iso6392[iso6391]; ok {
		return code
	}
	return iso6391
}

// ISO6391 converts an ISO 639-2/B code back to 639-1, returning the input
// unchanged when no mapping exists.
func ISO6391(code string) string {
	for short, long := range iso6392 {
		if long == code {
			return short
		}
	}
	return code
}

// Valid reports whether the code parses as a BCP 47 language tag.
func Valid(code string) bool {
	_, err := language.Parse(code)
	return err == nil
}
