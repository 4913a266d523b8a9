package translate

import (
	"strings"
	"unicode"
)

var enToES = map[string]string{
	"hello":                 "hola",
	"hi":                    "hola",
	"good morning":          "buenos días",
	"good afternoon":        "buenas tardes",
	"good evening":          "buenas noches",
	"good night":            "buenas noches",
	"goodbye":               "adiós",
	"bye":                   "adiós",
	"thank you":             "gracias",
	"thanks":                "gracias",
	"thank you very much":   "muchas gracias",
	"please":                "por favor",
	"yes":                   "sí",
	"no":                    "no",
	"ok":                    "vale",
	"how are you":           "cómo estás",
	"see you soon":          "hasta pronto",
	"see you tomorrow":      "hasta mañana",
	"the project":           "el proyecto",
	"the file":              "el archivo",
	"the design":            "el diseño",
	"is ready":              "está listo",
	"i have a question":     "tengo una pregunta",
	"any questions":         "alguna pregunta",
	"let me know":           "avísame",
	"i will check":          "lo revisaré",
	"looks good":            "se ve bien",
	"in progress":           "en progreso",
	"done":                  "hecho",
	"urgent":                "urgente",
	"sorry":                 "lo siento",
	"welcome":               "bienvenido",
	"have a nice day":       "que tengas un buen día",
	"i sent you the file":   "te envié el archivo",
	"can you send the file": "puedes enviar el archivo",
}

var enToRU = map[string]string{
	"hello":                 "привет",
	"hi":                    "привет",
	"good morning":          "доброе утро",
	"good afternoon":        "добрый день",
	"good evening":          "добрый вечер",
	"good night":            "спокойной ночи",
	"goodbye":               "до свидания",
	"bye":                   "пока",
	"thank you":             "спасибо",
	"thanks":                "спасибо",
	"thank you very much":   "большое спасибо",
	"please":                "пожалуйста",
	"yes":                   "да",
	"no":                    "нет",
	"ok":                    "хорошо",
	"how are you":           "как дела",
	"see you soon":          "до скорого",
	"see you tomorrow":      "до завтра",
	"the project":           "проект",
	"the file":              "файл",
	"the design":            "дизайн",
	"is ready":              "готов",
	"i have a question":     "у меня есть вопрос",
	"any questions":         "есть вопросы",
	"let me know":           "дайте знать",
	"i will check":          "я проверю",
	"looks good":            "выглядит хорошо",
	"in progress":           "в работе",
	"done":                  "готово",
	"urgent":                "срочно",
	"sorry":                 "извините",
	"welcome":               "добро пожаловать",
	"have a nice day":       "хорошего дня",
	"i sent you the file":   "я отправил вам файл",
	"can you send the file": "можете отправить файл",
}

type phraseTable struct {
	phrases  map[string]string
	maxWords int
}

var phrasebooks = map[string]phraseTable{}

func init() {
	register("en", "es", enToES)
	register("en", "ru", enToRU)
	register("es", "en", invert(enToES))
	register("ru", "en", invert(enToRU))
}

func register(source, target string, phrases map[string]string) {
	table := phraseTable{phrases: map[string]string{}}
	for k, v := range phrases {
		key := normalizePhrase(k)
		table.phrases[key] = v
		if n := len(strings.Fields(key)); n > table.maxWords {
			table.maxWords = n
		}
	}
	phrasebooks[source+"|"+target] = table
}

// invert keeps the first English phrase seen for each translation, preferring
// the shorter one so that "hola" maps back to "hi" deterministically.
func invert(m map[string]string) map[string]string {
	out := map[string]string{}
	for en, tr := range m {
		if prev, ok := out[tr]; ok && (len(prev) < len(en) || (len(prev) == len(en) && prev < en)) {
			continue
		}
		out[tr] = en
	}
	return out
}

// Lookup translates text from the bundled phrase tables. An exact phrase
// match wins; otherwise the longest known phrase at each position is
// substituted and unknown words are kept. ok is false when nothing matched.
func Lookup(text, source, target string) (string, bool) {
	table, found := phrasebooks[normalizeLang(source)+"|"+normalizeLang(target)]
	if !found {
		return "", false
	}
	normalized := normalizePhrase(text)
	if normalized == "" {
		return "", false
	}
	if exact, ok := table.phrases[normalized]; ok {
		return exact, true
	}

	words := strings.Fields(normalized)
	out := make([]string, 0, len(words))
	matched := false
	for i := 0; i < len(words); {
		span := 0
		for n := min(table.maxWords, len(words)-i); n > 0; n-- {
			if tr, ok := table.phrases[strings.Join(words[i:i+n], " ")]; ok {
				out = append(out, tr)
				span = n
				break
			}
		}
		if span == 0 {
			out = append(out, words[i])
			i++
			continue
		}
		matched = true
		i += span
	}
	if !matched {
		return "", false
	}
	return strings.Join(out, " "), true
}

func normalizePhrase(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '\'' {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
