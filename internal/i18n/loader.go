package i18n

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	logx "forumpoll/pkg/logx"

	"github.com/spf13/afero"
)

// Loader reads a {lang}/{namespace}.json tree into a Registry.
type Loader struct {
	fs  afero.Fs
	log logx.Logger
}

func NewLoader(fs afero.Fs, log logx.Logger) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loader{fs: fs, log: log}
}

// Load registers every readable file under dir and returns how many it
// loaded. A file that fails to read or decode is logged and skipped; only a
// missing or unreadable dir is an error.
func (l *Loader) Load(dir string, reg *Registry) (int, error) {
	langs, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return 0, fmt.Errorf("read translations dir %s: %w", dir, err)
	}

	loaded := 0
	for _, lang := range langs {
		if !lang.IsDir() {
			continue
		}
		langDir := filepath.Join(dir, lang.Name())
		files, err := afero.ReadDir(l.fs, langDir)
		if err != nil {
			l.log.Warn("read language dir failed", logx.String("path", langDir), logx.Err(err))
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			p := filepath.Join(langDir, f.Name())
			entries, err := l.readFile(p)
			if err != nil {
				l.log.Warn("translation file skipped", logx.String("path", p), logx.Err(err))
				continue
			}
			reg.AddTranslation(lang.Name(), strings.TrimSuffix(f.Name(), ".json"), entries)
			loaded++
		}
	}
	l.log.Debug("translations loaded", logx.String("dir", dir), logx.Int("files", loaded))
	return loaded, nil
}

func (l *Loader) readFile(p string) (map[string]string, error) {
	b, err := afero.ReadFile(l.fs, p)
	if err != nil {
		return nil, err
	}
	var entries map[string]string
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
