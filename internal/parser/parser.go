package parser

import (
	"strconv"
	"strings"

	"github.com/lyallcooper/moleui/internal/ansi"
	"github.com/lyallcooper/moleui/internal/sizes"
)

// Parser is a single-pass state machine over engine output lines. It is not
// safe for concurrent use; feed it from one goroutine.
type Parser struct {
	grammar *Grammar
	result  Result
	open    int // index of the open category, -1 when none
	emit    func(Event)
}

// New creates a parser. emit, if non-nil, receives every event in order.
func New(g *Grammar, emit func(Event)) *Parser {
	return &Parser{grammar: g, open: -1, emit: emit}
}

// Feed consumes one raw line. Lines matching no rule are dropped.
func (p *Parser) Feed(raw string) {
	line := ansi.CleanLine(raw)
	if line == "" {
		return
	}
	for _, rule := range p.grammar.Rules {
		m := rule.Pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		p.apply(rule, m)
		return
	}
}

// Close commits the open category, clears the activity and returns the
// result. The parser should not be fed afterwards.
func (p *Parser) Close() Result {
	p.commit()
	if p.result.Activity != "" {
		p.send(Event{Kind: ActivityChanged})
	}
	return p.result
}

// Result returns the state accumulated so far.
func (p *Parser) Result() Result {
	return p.result
}

func (p *Parser) apply(rule Rule, m []string) {
	re := rule.Pattern
	switch rule.action {
	case actSummary:
		s := &Summary{TotalSizeText: group(re, m, "size")}
		if n, ok := sizes.Parse(s.TotalSizeText); ok {
			s.TotalSize = &n
		}
		s.ItemCount, _ = strconv.Atoi(group(re, m, "items"))
		s.CategoryCount, _ = strconv.Atoi(group(re, m, "cats"))
		p.send(Event{Kind: SummarySet, Summary: s})

	case actHeader:
		p.commit()
		p.open = len(p.result.Categories)
		p.send(Event{Kind: CategoryOpened, Index: p.open, Category: group(re, m, "name")})

	case actSkip:

	case actSizedItem:
		item := Item{Description: group(re, m, "desc")}
		if n, ok := sizes.Parse(group(re, m, "size")); ok {
			item.SizeBytes = &n
		}
		p.appendItem(item)

	case actOutcomeItem:
		desc := group(re, m, "desc") + " (" + strings.ToLower(group(re, m, "outcome")) + ")"
		p.appendItem(Item{Description: desc})

	case actFailedItem:
		p.appendItem(Item{Description: group(re, m, "desc") + " (failed)"})

	case actPlainItem:
		p.appendItem(Item{Description: group(re, m, "desc")})

	case actActivity:
		text := group(re, m, "text")
		if text != p.result.Activity {
			p.send(Event{Kind: ActivityChanged, Activity: text})
		}
	}
}

// appendItem adds to the open category. Items seen before any header have
// nowhere to go and are dropped.
func (p *Parser) appendItem(item Item) {
	if p.open < 0 || strings.TrimSpace(item.Description) == "" {
		return
	}
	p.send(Event{Kind: ItemAppended, Index: p.open, Category: p.result.Categories[p.open].Name, Item: &item})
}

func (p *Parser) commit() {
	if p.open < 0 {
		return
	}
	c := p.result.Categories[p.open]
	p.send(Event{Kind: CategoryClosed, Index: p.open, Category: c.Name, Total: sumSizes(c.Items)})
	p.open = -1
}

func (p *Parser) send(ev Event) {
	p.result.Apply(ev)
	if p.emit != nil {
		p.emit(ev)
	}
}

// Parse runs lines through a fresh parser.
func Parse(g *Grammar, lines []string) Result {
	p := New(g, nil)
	for _, l := range lines {
		p.Feed(l)
	}
	return p.Close()
}

// ParseText splits buffered output on newlines and parses it.
func ParseText(g *Grammar, text string) Result {
	return Parse(g, strings.Split(text, "\n"))
}
