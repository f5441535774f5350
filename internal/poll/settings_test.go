package poll

import (
	"reflect"
	"strconv"
	"testing"
	"time"
)

func testDefaults() Settings {
	return Settings{SettingTitle: "Poll", SettingMaxVotes: "1", SettingEnd: "0"}
}

func TestExtractSettings(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(1_700_000_000_000)
	future := strconv.FormatInt(now.Add(time.Hour).UnixMilli(), 10)
	past := strconv.FormatInt(now.Add(-time.Hour).UnixMilli(), 10)

	tests := []struct {
		name string
		raw  string
		want Settings
	}{
		{
			name: "empty keeps defaults",
			raw:  "",
			want: testDefaults(),
		},
		{
			name: "all recognized keys",
			raw:  `max="5" title="My Poll" end="` + future + `"`,
			want: Settings{SettingMaxVotes: "5", SettingTitle: "My Poll", SettingEnd: future},
		},
		{
			name: "past end rejected",
			raw:  `end="` + past + `"`,
			want: testDefaults(),
		},
		{
			name: "end equal to now rejected",
			raw:  `end="` + strconv.FormatInt(now.UnixMilli(), 10) + `"`,
			want: testDefaults(),
		},
		{
			name: "non-numeric max rejected",
			raw:  `max="lots" title="T"`,
			want: Settings{SettingMaxVotes: "1", SettingTitle: "T", SettingEnd: "0"},
		},
		{
			name: "unknown keys ignored",
			raw:  `color="red" maxvotes="9" Title="x"`,
			want: testDefaults(),
		},
		{
			name: "values and keys trimmed",
			raw:  `  title=" Spaced  "   max=" 3 "`,
			want: Settings{SettingMaxVotes: "3", SettingTitle: "Spaced", SettingEnd: "0"},
		},
		{
			name: "blank value skipped",
			raw:  `title="   "`,
			want: testDefaults(),
		},
		{
			name: "last duplicate wins",
			raw:  `title="first" title="second"`,
			want: Settings{SettingMaxVotes: "1", SettingTitle: "second", SettingEnd: "0"},
		},
		{
			name: "invalid duplicate keeps earlier valid value",
			raw:  `max="4" max="x"`,
			want: Settings{SettingMaxVotes: "4", SettingTitle: "Poll", SettingEnd: "0"},
		},
		{
			name: "exponent end accepted",
			raw:  `end="1e13"`,
			want: Settings{SettingMaxVotes: "1", SettingTitle: "Poll", SettingEnd: "1e13"},
		},
		{
			name: "hex max rejected",
			raw:  `max="0x10"`,
			want: testDefaults(),
		},
		{
			name: "unclosed angle keeps later pairs",
			raw:  `title="a<b" max="3"`,
			want: Settings{SettingMaxVotes: "3", SettingTitle: "a<b", SettingEnd: "0"},
		},
		{
			name: "tags stripped",
			raw:  `title="<em>Hot</em> take"`,
			want: Settings{SettingMaxVotes: "1", SettingTitle: "Hot take", SettingEnd: "0"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSettings(tt.raw, testDefaults(), now)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ExtractSettings(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestExtractSettingsDoesNotMutateDefaults(t *testing.T) {
	t.Parallel()
	defaults := testDefaults()
	got := ExtractSettings(`title="Changed"`, defaults, time.Now())
	if got[SettingTitle] != "Changed" {
		t.Fatalf("title = %q, want Changed", got[SettingTitle])
	}
	if defaults[SettingTitle] != "Poll" {
		t.Fatalf("defaults mutated: %v", defaults)
	}
	got[SettingMaxVotes] = "99"
	if defaults[SettingMaxVotes] != "1" {
		t.Fatalf("result shares storage with defaults")
	}
}

func TestExtractSettingsNilDefaults(t *testing.T) {
	t.Parallel()
	got := ExtractSettings(`max="2"`, nil, time.Now())
	if !reflect.DeepEqual(got, Settings{SettingMaxVotes: "2"}) {
		t.Fatalf("got %v", got)
	}
}

func TestSettingsEnd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		v    string
		ms   int64
		isOK bool
	}{
		{"1700000000000", 1700000000000, true},
		{"1.7e12", 1700000000000, true},
		{"0", 0, false},
		{"", 0, false},
		{"soon", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		ms, ok := Settings{SettingEnd: tt.v}.End()
		if ms != tt.ms || ok != tt.isOK {
			t.Fatalf("End(%q) = (%d, %v), want (%d, %v)", tt.v, ms, ok, tt.ms, tt.isOK)
		}
	}
}
