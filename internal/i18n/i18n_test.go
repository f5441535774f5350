package i18n

import (
	"path/filepath"
	"reflect"
	"testing"

	logx "forumpoll/pkg/logx"

	"github.com/spf13/afero"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for p, body := range files {
		if err := afero.WriteFile(fs, p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
}

func TestLoaderSkipsMalformedFiles(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/lang/en_GB/poll.json":  `{"title": "Poll", "votes": "%1 votes"}`,
		"/lang/en_GB/admin.json": `{"save": "Save"`,
		"/lang/en_GB/notes.txt":  `ignored`,
		"/lang/nl/poll.json":     `{"title": "Peiling"}`,
		"/lang/README.json":      `{"not": "a language"}`,
	})

	reg := NewRegistry("en_GB")
	n, err := NewLoader(fs, logx.Nop()).Load("/lang", reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Fatalf("loaded = %d, want 2", n)
	}
	if got := reg.Languages(); !reflect.DeepEqual(got, []string{"en_GB", "nl"}) {
		t.Fatalf("languages = %v", got)
	}
	if got := reg.Namespaces("en_GB"); !reflect.DeepEqual(got, []string{"poll"}) {
		t.Fatalf("namespaces = %v", got)
	}
}

func TestLoaderReadsOsDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	fs := afero.NewOsFs()
	langDir := filepath.Join(dir, "nl")
	if err := fs.MkdirAll(langDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFiles(t, fs, map[string]string{
		filepath.Join(langDir, "poll.json"): `{"title": "Peiling"}`,
	})

	reg := NewRegistry("nl")
	n, err := NewLoader(fs, logx.Nop()).Load(dir, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 1 {
		t.Fatalf("loaded = %d, want 1", n)
	}
	if got := reg.Translate("nl", "poll:title"); got != "Peiling" {
		t.Fatalf("Translate = %q, want Peiling", got)
	}
}

func TestLoaderMissingDir(t *testing.T) {
	t.Parallel()
	_, err := NewLoader(afero.NewMemMapFs(), logx.Nop()).Load("/nope", NewRegistry("en_GB"))
	if err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()
	reg := NewRegistry("en_GB")
	reg.AddTranslation("en_GB", "poll", map[string]string{
		"title": "Poll",
		"votes": "%1 of %2 votes",
		"ended": "Poll ended",
	})
	reg.AddTranslation("nl", "poll", map[string]string{"title": "Peiling"})

	tests := []struct {
		name string
		lang string
		ref  string
		args []string
		want string
	}{
		{name: "direct", lang: "nl", ref: "poll:title", want: "Peiling"},
		{name: "fallback", lang: "nl", ref: "poll:ended", want: "Poll ended"},
		{name: "unknown lang", lang: "de", ref: "poll:title", want: "Poll"},
		{name: "args", lang: "en_GB", ref: "poll:votes", args: []string{"3", "10"}, want: "3 of 10 votes"},
		{name: "unknown key", lang: "en_GB", ref: "poll:nope", want: "poll:nope"},
		{name: "no namespace", lang: "en_GB", ref: "title", want: "title"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := reg.Translate(tt.lang, tt.ref, tt.args...); got != tt.want {
				t.Fatalf("Translate(%q, %q) = %q, want %q", tt.lang, tt.ref, got, tt.want)
			}
		})
	}
}

func TestAddTranslationMerges(t *testing.T) {
	t.Parallel()
	reg := NewRegistry("en_GB")
	reg.AddTranslation("en_GB", "poll", map[string]string{"a": "A"})
	reg.AddTranslation("en_GB", "poll", map[string]string{"b": "B"})
	if reg.Translate("en_GB", "poll:a") != "A" || reg.Translate("en_GB", "poll:b") != "B" {
		t.Fatal("second AddTranslation should merge, not replace")
	}
}
