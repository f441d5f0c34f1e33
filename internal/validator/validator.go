// Package validator checks that reference translations are written in the
// expected target language.
package validator

import (
	"fmt"
	"strings"

	"github.com/valpere/xliffqe/internal"
	"github.com/valpere/xliffqe/internal/detector"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

// Verdicts written to the lang_check column.
const (
	VerdictOK      = "ok"
	VerdictSkipped = "skipped"
)

// Validator checks that a reference is written in the expected target language.
// The underlying language detector is expensive to build; reuse the instance.
type Validator struct {
	det *detector.Detector
}

func New(det *detector.Detector) *Validator {
	if det == nil {
		det = detector.New()
	}
	return &Validator{det: det}
}

// Check returns nil when text appears to be written in targetLang.
//
// Short texts and texts whose language cannot be determined pass. When the
// detected language differs from targetLang the returned error names both
// codes.
func (v *Validator) Check(text, targetLang string) error {
	if targetLang == "" {
		return nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("text is empty")
	}

	if len([]rune(text)) < minValidationLength {
		return nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return nil
	}

	if !detector.SameLanguage(detected, targetLang) {
		return fmt.Errorf("expected %s but detected %s", targetLang, detected)
	}
	return nil
}

// Verdict is the lang_check cell for one reference.
func (v *Validator) Verdict(text, targetLang string) string {
	if targetLang == "" || len([]rune(strings.TrimSpace(text))) < minValidationLength {
		return VerdictSkipped
	}
	if err := v.Check(text, targetLang); err != nil {
		return err.Error()
	}
	return VerdictOK
}

// CheckReferences fills LangCheck on every segment that has a reference and
// returns the number of mismatches. A segment's own TargetLang wins over
// fallbackLang.
func (v *Validator) CheckReferences(segs []internal.Segment, fallbackLang string) int {
	mismatches := 0
	for i := range segs {
		if segs[i].Ref == "" {
			continue
		}
		lang := segs[i].TargetLang
		if lang == "" {
			lang = fallbackLang
		}
		segs[i].LangCheck = v.Verdict(segs[i].Ref, lang)
		if segs[i].LangCheck != VerdictOK && segs[i].LangCheck != VerdictSkipped {
			mismatches++
		}
	}
	return mismatches
}
