package detector

import (
	"testing"
)

func TestDetector_Detect(t *testing.T) {
	d := New()

	tests := []struct {
		name     string
		text     string
		wantLang string
		wantOK   bool
	}{
		{
			name:     "empty text",
			text:     "",
			wantLang: "",
			wantOK:   false,
		},
		{
			name:     "whitespace only",
			text:     "   \n\t",
			wantLang: "",
			wantOK:   false,
		},
		{
			name:     "english text",
			text:     "Click the Save button to keep your changes.",
			wantLang: "English",
			wantOK:   true,
		},
		{
			name:     "french text",
			text:     "Cliquez sur le bouton Enregistrer pour conserver vos modifications.",
			wantLang: "French",
			wantOK:   true,
		},
		{
			name:     "german text",
			text:     "Klicken Sie auf Speichern, um Ihre Änderungen zu behalten.",
			wantLang: "German",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lang, ok := d.Detect(tt.text)
			if ok != tt.wantOK {
				t.Errorf("Detect(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
				return
			}
			if ok && lang.String() != tt.wantLang {
				t.Errorf("Detect(%q) = %s, want %s", tt.text, lang.String(), tt.wantLang)
			}
		})
	}
}

func TestDetector_DetectISO(t *testing.T) {
	d := NewFor("en", "es-ES")

	code, ok := d.DetectISO("Haga clic en Guardar para conservar los cambios.")
	if !ok {
		t.Fatal("expected detection to succeed")
	}
	if code != "es" {
		t.Errorf("expected 'es', got %q", code)
	}
}

func TestNewFor_UnknownCodesFallBack(t *testing.T) {
	d := NewFor("xx", "en")
	if d.langs != nil {
		t.Errorf("expected fallback to all languages, got %v", d.langs)
	}
}

func TestSameLanguage(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"fr-FR", "fr", true},
		{"fr_CA", "FR", true},
		{"en-US", "en-GB", true},
		{"de", "nl", false},
		{"pt-BR", "es", false},
	}

	for _, tt := range tests {
		if got := SameLanguage(tt.a, tt.b); got != tt.want {
			t.Errorf("SameLanguage(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
