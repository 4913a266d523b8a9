package translate

import (
	"strings"
	"unicode"
)

const Undetermined = "und"

var commonWords = map[string]map[string]struct{}{
	"en": wordSet("the and is are you i to of a in it that for on with this have be not we can will please thanks thank hello hi what when how my your yes no"),
	"es": wordSet("el la los las y es son tú yo de que en un una por para con esto tengo puedo gracias hola qué cuándo cómo mi tu sí no pero muy bien"),
	"ru": wordSet("и в не на я что он с как а то это по но вы мы да нет спасибо привет пожалуйста здравствуйте у меня есть когда где"),
}

func wordSet(words string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.Fields(words) {
		out[w] = struct{}{}
	}
	return out
}

// DetectLanguage picks between a and b by counting common words. Cyrillic
// tokens also count towards ru. Ties, including no evidence at all, return
// Undetermined.
func DetectLanguage(text, a, b string) string {
	a = normalizeLang(a)
	b = normalizeLang(b)
	if a == b {
		return a
	}
	scoreA := score(text, a)
	scoreB := score(text, b)
	switch {
	case scoreA > scoreB:
		return a
	case scoreB > scoreA:
		return b
	default:
		return Undetermined
	}
}

func score(text, lang string) int {
	words := commonWords[lang]
	n := 0
	for _, token := range strings.Fields(normalizePhrase(text)) {
		if _, ok := words[token]; ok {
			n++
			continue
		}
		if lang == "ru" && isCyrillic(token) {
			n++
		}
	}
	return n
}

func isCyrillic(token string) bool {
	for _, r := range token {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}
