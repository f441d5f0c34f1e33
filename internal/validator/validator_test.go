package validator

import (
	"testing"

	"github.com/valpere/xliffqe/internal"
	"github.com/valpere/xliffqe/internal/detector"
)

// One detector for the whole file; building it is slow.
var shared = New(detector.NewFor("en", "fr", "de", "uk"))

func TestCheck_EmptyTargetLang(t *testing.T) {
	if err := shared.Check("Some reference text", ""); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheck_EmptyText(t *testing.T) {
	if err := shared.Check("   ", "en"); err == nil {
		t.Error("expected error for whitespace-only text")
	}
}

func TestCheck_ShortText(t *testing.T) {
	if err := shared.Check("Hi", "fr"); err != nil {
		t.Errorf("unexpected error for short text: %v", err)
	}
}

func TestCheck_Match(t *testing.T) {
	text := "Cliquez sur le bouton Enregistrer pour conserver vos modifications."
	if err := shared.Check(text, "fr-FR"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheck_Mismatch(t *testing.T) {
	text := "This is a longer piece of text that should be detected as English."
	if err := shared.Check(text, "uk"); err == nil {
		t.Error("expected error for mismatched language")
	}
}

func TestCheck_CaseInsensitiveTargetLang(t *testing.T) {
	text := "This is a longer piece of text that should be detected as English."
	if err := shared.Check(text, "EN"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheckReferences(t *testing.T) {
	segs := []internal.Segment{
		{Source: "Save", Ref: "Cliquez sur le bouton Enregistrer pour conserver vos modifications."},
		{Source: "Save", Ref: "This is a longer piece of text that should be detected as English."},
		{Source: "Ok", Ref: "OK"},
		{Source: "Bye"},
		{Source: "Save", Ref: "Klicken Sie auf Speichern, um Ihre Änderungen zu behalten.", TargetLang: "de"},
	}

	n := shared.CheckReferences(segs, "fr")
	if n != 1 {
		t.Errorf("expected 1 mismatch, got %d", n)
	}

	want := []string{VerdictOK, "expected fr but detected en", VerdictSkipped, "", VerdictOK}
	for i, w := range want {
		if segs[i].LangCheck != w {
			t.Errorf("segment %d: LangCheck = %q, want %q", i, segs[i].LangCheck, w)
		}
	}
}
