package classifier

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const minTokenLen = 3

// stopwords is a combined Spanish/English list
var stopwords = toSet(strings.Fields(`
	a al algo algunas algunos ante antes como con contra cual cuando de del desde donde durante
	e el ella ellas ellos en entre era eres es esa esas ese eso esos esta estas este esto estos
	fue ha hay hasta la las le les lo los mas me mi mis mucho muchos muy nada ni no nos nosotros
	o os otra otras otro otros para pero poco por porque que quien quienes se ser si sin sobre
	su sus tambien te tiene tienen todo todos tu tus un una unas uno unos vosotros y ya yo
	about above after again all also and any are because been before being below between both
	but can could did does doing down each few for from further had has have having her here
	hers him his how into its just more most not now off once only other our ours out over own
	same she should some such than that the their theirs them then there these they this those
	through too under until very was were what when where which while who whom why will with
	would you your yours
`))

// Tokenize lowercases text, replaces anything that is not a letter or digit
// with a space, and drops stopwords and tokens shorter than three characters.
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) < minTokenLen {
			continue
		}
		if _, stop := stopwords[foldAccents(tok)]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u",
)

// foldAccents lets "también" and "tambien" hit the same stopword
func foldAccents(s string) string {
	return accentFolder.Replace(s)
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
