package session

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the shell's rc-file configuration: startup variable bindings,
// the prompt template, and whether ErrExit is on by default.
type Config struct {
	Vars     map[string]string `yaml:"vars"`
	Prompt   string            `yaml:"prompt"`
	ErrExit  bool              `yaml:"err_exit"`
	LogLevel string            `yaml:"log_level"`
}

// DefaultConfig mirrors the zero-config startup behavior: a plain prompt,
// ErrExit off, info-level logging.
func DefaultConfig() Config {
	return Config{Prompt: "ion> ", LogLevel: "info"}
}

// LoadConfig reads and parses a YAML rc file. A missing file is not an
// error; it returns DefaultConfig unchanged, since running with no rc file
// at all is normal.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Prompt == "" {
		cfg.Prompt = "ion> "
	}
	return cfg, nil
}

// Interpolate substitutes "{{KEY}}" and "{{.KEY}}" placeholders (with or
// without surrounding spaces) in tmpl using vars. Used to expand the
// prompt template and any rc-file string that references a startup
// variable.
func Interpolate(tmpl string, vars map[string]string) string {
	if tmpl == "" {
		return tmpl
	}
	res := tmpl
	for k, v := range vars {
		res = strings.ReplaceAll(res, "{{"+k+"}}", v)
		res = strings.ReplaceAll(res, "{{ "+k+" }}", v)
		res = strings.ReplaceAll(res, "{{."+k+"}}", v)
		res = strings.ReplaceAll(res, "{{ ."+k+" }}", v)
	}
	return res
}
