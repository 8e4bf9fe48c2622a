package standoff

import (
	"fmt"
	"slices"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/standoffconverter/core/cache"
	"github.com/FocuswithJustin/standoffconverter/core/errors"
)

// chainGrammar is the participle grammar for filter chains.
// Examples: "/text", "/text/p", "/text/p -del -note"
//
//nolint:govet // participle grammar tags are not standard struct tags
type chainGrammar struct {
	Steps []*chainStep `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type chainStep struct {
	Op  string `@("/" | "-")`
	Tag string `@Ident`
}

// chainLexer defines the lexer for filter chains. Tags may carry a prefix.
var chainLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.:\-]*`},
	{Name: "Punct", Pattern: `[/\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var chainParser = participle.MustBuild[chainGrammar](
	participle.Lexer(chainLexer),
	participle.Elide("Whitespace"),
)

// Step is one filter operation: Find by default, Exclude when set.
type Step struct {
	Exclude bool
	Tag     string
}

// Chain is a parsed sequence of filter steps, applied left to right.
type Chain struct {
	Steps []Step
}

// chains holds recently parsed chain expressions.
var chains = cache.NewCompiled(64, parseChain)

// ParseChain parses a chain expression. "/tag" finds, "-tag" excludes.
func ParseChain(expr string) (*Chain, error) {
	c, err := chains.Get(strings.TrimSpace(expr))
	if err != nil {
		return nil, err
	}
	return &Chain{Steps: slices.Clone(c.Steps)}, nil
}

func parseChain(expr string) (*Chain, error) {
	if expr == "" {
		return nil, errors.NewParse("chain", "", "empty expression")
	}
	parsed, err := chainParser.ParseString("", expr)
	if err != nil {
		return nil, errors.NewParse("chain", "", fmt.Sprintf("%q: %v", expr, err))
	}
	c := &Chain{Steps: make([]Step, 0, len(parsed.Steps))}
	for _, s := range parsed.Steps {
		c.Steps = append(c.Steps, Step{Exclude: s.Op == "-", Tag: s.Tag})
	}
	return c, nil
}

// Apply runs the chain on f and returns f.
func (c *Chain) Apply(f *Filter) *Filter {
	for _, s := range c.Steps {
		if s.Exclude {
			f.Exclude(s.Tag)
		} else {
			f.Find(s.Tag)
		}
	}
	return f
}

func (c *Chain) String() string {
	var sb strings.Builder
	for i, s := range c.Steps {
		switch {
		case s.Exclude:
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteByte('-')
		default:
			sb.WriteByte('/')
		}
		sb.WriteString(s.Tag)
	}
	return sb.String()
}
