package poll

import "time"

// ConfigSource supplies the parser's tunables. It is consulted on every
// Parse call, never cached.
type ConfigSource interface {
	MaxOptions() int
	DefaultSettings() Settings
}

type Parser struct {
	cfg ConfigSource
	now func() time.Time
}

func NewParser(cfg ConfigSource) *Parser {
	return &Parser{cfg: cfg, now: time.Now}
}

// Parse extracts the first poll block of text. ok is false for plain posts.
func (p *Parser) Parse(text string) (Parsed, bool) {
	b, ok := ParseBlock(text)
	if !ok {
		return Parsed{}, false
	}
	return p.ParseParts(b), true
}

// ParseParts extracts options and settings from an already split block.
func (p *Parser) ParseParts(b Block) Parsed {
	maxOptions := 0
	var defaults Settings
	if p.cfg != nil {
		maxOptions = p.cfg.MaxOptions()
		defaults = p.cfg.DefaultSettings()
	}
	return Parsed{
		Options:  ExtractOptions(b.Content, maxOptions),
		Settings: ExtractSettings(b.Settings, defaults, p.now()),
	}
}
