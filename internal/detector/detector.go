// Package detector guesses the language of a text with lingua-go.
package detector

import (
	"strings"
	"sync"

	lingua "github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
)

// Detector is safe for concurrent use. Building the lingua model is
// expensive, so it happens on first use and the instance should be shared.
type Detector struct {
	once     sync.Once
	langs    []lingua.Language
	detector lingua.LanguageDetector
}

// New returns a detector over every language lingua knows.
func New() *Detector {
	return &Detector{}
}

// NewFor restricts detection to the given ISO 639-1 codes. Unknown codes are
// ignored; if none remain the detector falls back to all languages.
func NewFor(codes ...string) *Detector {
	d := &Detector{}
	for _, code := range codes {
		iso := lingua.GetIsoCode639_1FromValue(strings.ToUpper(baseCode(code)))
		if iso == lingua.UnknownIsoCode639_1 {
			continue
		}
		d.langs = append(d.langs, lingua.GetLanguageFromIsoCode639_1(iso))
	}
	if len(d.langs) < 2 {
		d.langs = nil
	}
	return d
}

func (d *Detector) build() {
	builder := lingua.NewLanguageDetectorBuilder()
	if len(d.langs) > 0 {
		d.detector = builder.FromLanguages(d.langs...).Build()
		return
	}
	d.detector = builder.FromAllLanguages().Build()
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return lingua.Unknown, false
	}
	d.once.Do(d.build)
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lower-case ISO 639-1 code of text.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// SameLanguage compares two codes by base language, so "fr-FR", "fr_CA"
// and "fr" all match. Unparseable codes fall back to a case-insensitive
// comparison.
func SameLanguage(a, b string) bool {
	return strings.EqualFold(baseCode(a), baseCode(b))
}

func baseCode(code string) string {
	code = strings.ReplaceAll(strings.TrimSpace(code), "_", "-")
	tag, err := language.Parse(code)
	if err != nil {
		if i := strings.IndexByte(code, '-'); i > 0 {
			return strings.ToLower(code[:i])
		}
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}
