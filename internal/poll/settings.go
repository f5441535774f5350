package poll

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var pairRE = regexp.MustCompile(`(?P<key>[^"]+?)="(?P<value>[^"]+?)"`)

var (
	pairKeyIdx   = pairRE.SubexpIndex("key")
	pairValueIdx = pairRE.SubexpIndex("value")
)

type settingRule struct {
	name  string // canonical name in Settings
	valid func(value string, now time.Time) bool
}

// settingRules maps markup keys to their canonical names and validators.
// Adding a setting means adding a row here.
var settingRules = map[string]settingRule{
	"max":   {name: SettingMaxVotes, valid: isNumber},
	"title": {name: SettingTitle, valid: isNonEmpty},
	"end":   {name: SettingEnd, valid: isFutureMillis},
}

// ExtractSettings reads key="value" pairs from raw and merges the valid ones
// over a copy of defaults. Pairs are applied left to right, so a repeated
// key keeps its last valid value. It never fails.
func ExtractSettings(raw string, defaults Settings, now time.Time) Settings {
	out := defaults.Clone()
	if out == nil {
		out = Settings{}
	}

	for _, m := range pairRE.FindAllStringSubmatch(StripTags(raw), -1) {
		key := strings.TrimSpace(m[pairKeyIdx])
		value := strings.TrimSpace(m[pairValueIdx])
		if key == "" || value == "" {
			continue
		}
		rule, ok := settingRules[key]
		if !ok || !rule.valid(value, now) {
			continue
		}
		out[rule.name] = value
	}
	return out
}

func isNumber(v string, _ time.Time) bool {
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && !math.IsNaN(f)
}

func isNonEmpty(v string, _ time.Time) bool { return len(v) > 0 }

func isFutureMillis(v string, now time.Time) bool {
	ms, ok := ParseMillis(v)
	return ok && ms > now.UnixMilli()
}
