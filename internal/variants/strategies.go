package variants

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// synonyms maps common query words to replacements used by the paraphrase
// strategy. Keys are matched case-insensitively on whole words.
var synonyms = map[string][]string{
	"best":     {"top", "leading", "most recommended", "highest rated"},
	"good":     {"reliable", "quality", "well regarded"},
	"tools":    {"platforms", "software", "solutions"},
	"tool":     {"platform", "solution"},
	"company":  {"business", "firm", "provider"},
	"service":  {"solution", "offering", "platform"},
	"software": {"platform", "tooling", "application"},
	"agency":   {"firm", "consultancy", "service provider"},
	"cheap":    {"affordable", "budget friendly", "low cost"},
	"how":      {"what is the way", "what's the method"},
}

var questionStarters = []string{
	"What are the",
	"Which are the",
	"Who offers the",
	"How do I find the",
	"Where can I find the",
	"Why should I choose the",
	"How do I pick the",
	"What makes the",
}

var comparisonFrames = []string{
	"%s compared",
	"%s: which one is better",
	"%s vs the alternatives",
	"Compare %s side by side",
	"Pros and cons of %s",
	"%s ranked from best to worst",
}

var personas = []string{
	"a small business owner",
	"a marketing director",
	"a startup founder",
	"an enterprise buyer",
	"a freelancer on a budget",
	"an agency consultant",
}

var longTailModifiers = []string{
	"for small businesses",
	"for startups",
	"with pricing and reviews",
	"with a free trial",
	"for enterprise teams",
	"for agencies",
	"worth paying for",
	"with the best support",
}

// localeTags are the locales the locale-adaptation strategy cycles through.
var localeTags = []language.Tag{
	language.BritishEnglish,
	language.MustParse("en-AU"),
	language.MustParse("en-CA"),
	language.MustParse("en-IN"),
	language.MustParse("en-IE"),
	language.MustParse("en-NZ"),
}

// apply renders the idx-th variant of a strategy. idx selects among the
// strategy's templates, so consecutive indices yield different texts until
// the template space wraps.
func apply(s Strategy, seed string, keywords []string, idx int, rng *rand.Rand) Generated {
	switch s {
	case StrategyParaphrase:
		return paraphrase(seed, idx, rng)
	case StrategyQuestion:
		starter := questionStarters[idx%len(questionStarters)]
		body := strings.TrimSuffix(lowerFirst(stripLeading(seed, "best ", "top ")), "?")
		text := capitalize(fmt.Sprintf("%s %s?", starter, body))
		return Generated{Text: text, Strategy: s, Params: map[string]any{"starter": starter}}
	case StrategyComparison:
		frame := comparisonFrames[idx%len(comparisonFrames)]
		subject := seed
		if len(keywords) > 0 {
			kw := keywords[idx%len(keywords)]
			subject = cases.Title(language.English).String(kw)
		}
		return Generated{Text: capitalize(fmt.Sprintf(frame, subject)), Strategy: s, Params: map[string]any{"frame": frame}}
	case StrategyLocale:
		tag := localeTags[idx%len(localeTags)]
		region, _ := tag.Region()
		name := display.English.Regions().Name(region)
		return Generated{
			Text:     fmt.Sprintf("%s in %s", capitalize(seed), name),
			Strategy: s,
			Params:   map[string]any{"locale": tag.String()},
		}
	case StrategyPersona:
		persona := personas[idx%len(personas)]
		return Generated{
			Text:     fmt.Sprintf("I'm %s. %s", persona, capitalize(seed)),
			Strategy: s,
			Params:   map[string]any{"persona": persona},
		}
	case StrategyLongTail:
		mod := longTailModifiers[idx%len(longTailModifiers)]
		text := fmt.Sprintf("%s %s", capitalize(seed), mod)
		if len(keywords) > 0 && idx >= len(longTailModifiers) {
			text = fmt.Sprintf("%s %s %s", capitalize(seed), mod, keywords[idx%len(keywords)])
		}
		return Generated{Text: text, Strategy: s, Params: map[string]any{"modifier": mod}}
	}
	return Generated{Text: capitalize(seed), Strategy: s}
}

// paraphrase replaces known words with synonyms. The rng drives replacement
// choice; idx shifts which option is preferred so repeated calls diverge.
func paraphrase(seed string, idx int, rng *rand.Rand) Generated {
	words := strings.Fields(seed)
	replaced := 0
	for i, w := range words {
		opts, ok := synonyms[strings.ToLower(w)]
		if !ok {
			continue
		}
		choice := (idx + rng.IntN(len(opts))) % len(opts)
		words[i] = opts[choice]
		replaced++
	}
	text := capitalize(strings.Join(words, " "))
	if replaced == 0 {
		// Nothing replaceable: fall back to a light rewording.
		text = capitalize(fmt.Sprintf("recommendations for %s", lowerFirst(seed)))
	}
	return Generated{Text: text, Strategy: StrategyParaphrase, Params: map[string]any{"replacements": replaced}}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func stripLeading(s string, prefixes ...string) string {
	ls := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(ls, p) {
			return s[len(p):]
		}
	}
	return s
}
