package slug

import (
	"regexp"
	"strings"
)

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

	// Turkish plus the Latin-1 letters that show up in brand names.
	transliterator = strings.NewReplacer(
		"ç", "c", "ğ", "g", "ı", "i", "\u0307", "", "ö", "o", "ş", "s", "ü", "u",
		"á", "a", "à", "a", "â", "a", "ä", "a", "ã", "a", "å", "a",
		"é", "e", "è", "e", "ê", "e", "ë", "e",
		"í", "i", "ì", "i", "î", "i", "ï", "i",
		"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ø", "o",
		"ú", "u", "ù", "u", "û", "u",
		"ñ", "n", "ß", "ss", "&", " and ",
	)
)

// Generate creates a URL-friendly slug from name.
//
//   - "Kadın Giyim" → "kadin-giyim"
//   - "İç Giyim & Pijama" → "ic-giyim-and-pijama"
//   - "Crème Brûlée" → "creme-brulee"
func Generate(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = transliterator.Replace(s)
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Equal reports whether a and b produce the same slug.
func Equal(a, b string) bool {
	return Generate(a) == Generate(b)
}
