package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lyallcooper/moleui/internal/sizes"
)

type action int

const (
	actSummary action = iota
	actHeader
	actSkip
	actSizedItem
	actOutcomeItem
	actFailedItem
	actPlainItem
	actActivity
)

// Rule is one line pattern. Rules are tried in order and the first match
// wins, so newer engine formats are added without dropping older ones.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	action  action
}

// Grammar is the ordered rule list for one engine verb.
type Grammar struct {
	Verb  string
	Rules []Rule
}

const (
	headerGlyphs   = `➤▶`
	itemGlyphs     = `→✓✔`
	failedGlyphs   = `✗✘×`
	activityGlyphs = `•◦\x{2800}-\x{28FF}`
	sizeGroup      = `(?P<size>` + sizes.TokenPattern + `)`
)

func summaryRule(sizeLabel, itemsLabel string) Rule {
	pattern := `(?i)^` + regexp.QuoteMeta(sizeLabel) + `:\s*` + sizeGroup +
		`\s*\|\s*` + regexp.QuoteMeta(itemsLabel) + `:\s*(?P<items>\d+)` +
		`\s*\|\s*Categories:\s*(?P<cats>\d+)`
	return Rule{Name: "summary " + strings.ToLower(sizeLabel), Pattern: regexp.MustCompile(pattern), action: actSummary}
}

func headerRule() Rule {
	return Rule{Name: "header", Pattern: regexp.MustCompile(`^[` + headerGlyphs + `]\s*(?P<name>\S.*)$`), action: actHeader}
}

// emptyRule swallows "nothing found" markers so they never become items.
func emptyRule(phrases ...string) Rule {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	pattern := `^[` + itemGlyphs + `]\s*(?i:` + strings.Join(quoted, "|") + `)\b`
	return Rule{Name: "empty marker", Pattern: regexp.MustCompile(pattern), action: actSkip}
}

func sizedItemRule() Rule {
	pattern := `^[` + itemGlyphs + `]\s*(?P<desc>.+?),\s*` + sizeGroup + `(?:\s+dry)?$`
	return Rule{Name: "sized item", Pattern: regexp.MustCompile(pattern), action: actSizedItem}
}

func outcomeItemRule() Rule {
	pattern := `^[` + itemGlyphs + `]\s*(?P<desc>.+?)\s+[·|-]\s+(?P<outcome>(?i:would)\s+.+)$`
	return Rule{Name: "outcome item", Pattern: regexp.MustCompile(pattern), action: actOutcomeItem}
}

func failedItemRule() Rule {
	return Rule{Name: "failed item", Pattern: regexp.MustCompile(`^[` + failedGlyphs + `]\s*(?P<desc>\S.*)$`), action: actFailedItem}
}

// plainItemRule ignores lines whose text is an absolute path; those are
// detail listings, not items.
func plainItemRule() Rule {
	return Rule{Name: "plain item", Pattern: regexp.MustCompile(`^[` + itemGlyphs + `]\s*(?P<desc>[^/\s].*)$`), action: actPlainItem}
}

func activityRule() Rule {
	return Rule{Name: "activity", Pattern: regexp.MustCompile(`^[` + activityGlyphs + `]\s*(?P<text>\S.*)$`), action: actActivity}
}

// Per-verb grammars. Summary rules come first, then headers, empty markers,
// and the item rules from most to least specific.
var (
	Clean = &Grammar{Verb: "clean", Rules: []Rule{
		summaryRule("Potential space", "Items"),
		summaryRule("Space freed", "Items cleaned"),
		headerRule(),
		emptyRule("Nothing to clean", "Already clean", "No items found"),
		sizedItemRule(),
		outcomeItemRule(),
		plainItemRule(),
		activityRule(),
	}}

	Optimize = &Grammar{Verb: "optimize", Rules: []Rule{
		headerRule(),
		emptyRule("Nothing to optimize", "Already optimized", "Already optimal"),
		sizedItemRule(),
		outcomeItemRule(),
		failedItemRule(),
		plainItemRule(),
		activityRule(),
	}}

	Purge = &Grammar{Verb: "purge", Rules: []Rule{
		summaryRule("Potential space", "Items"),
		summaryRule("Space freed", "Items"),
		headerRule(),
		emptyRule("Nothing to purge", "No artifacts found", "No projects found"),
		sizedItemRule(),
		outcomeItemRule(),
		plainItemRule(),
		activityRule(),
	}}

	Uninstall = &Grammar{Verb: "uninstall", Rules: []Rule{
		summaryRule("Potential space", "Items"),
		summaryRule("Space freed", "Items removed"),
		headerRule(),
		emptyRule("Nothing to remove", "No leftovers found", "No related files found"),
		sizedItemRule(),
		outcomeItemRule(),
		failedItemRule(),
		plainItemRule(),
		activityRule(),
	}}
)

var grammars = map[string]*Grammar{
	Clean.Verb:     Clean,
	Optimize.Verb:  Optimize,
	Purge.Verb:     Purge,
	Uninstall.Verb: Uninstall,
}

// ForVerb returns the grammar for an engine verb.
func ForVerb(verb string) (*Grammar, error) {
	g, ok := grammars[verb]
	if !ok {
		return nil, fmt.Errorf("no output grammar for verb %q", verb)
	}
	return g, nil
}

// Verbs lists the verbs that have a grammar.
func Verbs() []string {
	return []string{Clean.Verb, Optimize.Verb, Purge.Verb, Uninstall.Verb}
}

func group(re *regexp.Regexp, m []string, name string) string {
	i := re.SubexpIndex(name)
	if i < 0 || i >= len(m) {
		return ""
	}
	return strings.TrimSpace(m[i])
}
