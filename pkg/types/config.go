package types

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Defaults applied by WithDefaults.
const (
	DefaultSep       = ","
	DefaultChunkSize = 400
	DefaultWorkers   = 1
	DefaultMaxOpen   = 256
)

// Config is the immutable input of one transpose run.
type Config struct {
	Source        string `json:"source" yaml:"source" validate:"required"`
	Output        string `json:"output" yaml:"output" validate:"required,nefield=Source"`
	InSep         string `json:"insep" yaml:"insep" validate:"required,sep"`
	OutSep        string `json:"outsep" yaml:"outsep" validate:"required,sep"`
	ChunkSize     int    `json:"chunksize" yaml:"chunksize" validate:"gt=0"`
	ChunkDir      string `json:"chunk_dir" yaml:"chunk_dir" validate:"required"`
	KeepChunks    bool   `json:"keep_chunks" yaml:"keep_chunks"`
	CleanChunkDir bool   `json:"clean_chunk_dir" yaml:"clean_chunk_dir"`
	Quiet         bool   `json:"quiet" yaml:"quiet"`
	Workers       int    `json:"workers" yaml:"workers" validate:"gte=1"`
	MaxOpen       int    `json:"max_open" yaml:"max_open" validate:"gte=2"`
}

// configValidate is shared by all Config values; validator caches struct
// metadata per instance.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("sep", validateSep)
}

// validateSep accepts a single character usable as a field delimiter.
func validateSep(fl validator.FieldLevel) bool {
	_, err := SepRune(fl.Field().String())
	return err == nil
}

// SepRune decodes a separator string into the rune used by the delimited
// text codec. The escapes `\t` and "tab" name a tab character.
func SepRune(sep string) (rune, error) {
	switch sep {
	case `\t`, "tab", "TAB":
		return '\t', nil
	}
	if utf8.RuneCountInString(sep) != 1 {
		return 0, errors.New("separator must be exactly one character")
	}
	r, _ := utf8.DecodeRuneInString(sep)
	if r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, errors.New("separator cannot be a quote, newline or invalid rune")
	}
	return r, nil
}

// WithDefaults returns a copy of c with empty optional fields filled in.
// ChunkSize is left untouched: a zero chunk size is a caller error.
func (c Config) WithDefaults() Config {
	if c.InSep == "" {
		c.InSep = DefaultSep
	}
	if c.OutSep == "" {
		c.OutSep = DefaultSep
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.MaxOpen == 0 {
		c.MaxOpen = DefaultMaxOpen
	}
	if c.ChunkDir == "" && c.Output != "" {
		c.ChunkDir = DefaultChunkDir(c.Output)
	}
	return c
}

// Validate checks that the Config is well-formed and that the source file
// exists. It never creates or opens anything else.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{Field: strings.ToLower(fe.Field()), Reason: reasonFor(fe)}
		}
		return &ConfigError{Field: "config", Reason: err.Error()}
	}

	info, err := os.Stat(c.Source)
	if err != nil {
		return &ConfigError{Field: "source", Reason: "file does not exist: " + c.Source}
	}
	if info.IsDir() {
		return &ConfigError{Field: "source", Reason: "is a directory: " + c.Source}
	}

	// Cleanup empties the chunk directory, so it must not hold the files the
	// run reads or publishes.
	for _, f := range []struct{ field, path string }{{"source", c.Source}, {"output", c.Output}} {
		inside, err := within(c.ChunkDir, f.path)
		if err != nil {
			return &ConfigError{Field: f.field, Reason: err.Error()}
		}
		if inside {
			return &ConfigError{Field: f.field, Reason: "must not be inside chunk_dir " + c.ChunkDir}
		}
	}
	return nil
}

// within reports whether path lies inside dir, at any depth.
func within(dir, path string) (bool, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absDir, filepath.Dir(absPath))
	if err != nil {
		return false, nil
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))), nil
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "sep":
		return "must be a single character (got " + quote(fe.Value()) + ")"
	case "nefield":
		return "must differ from " + strings.ToLower(fe.Param())
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func quote(v any) string {
	s, _ := v.(string)
	return "\"" + s + "\""
}

// OutputStem returns the output file name without directory and extension,
// e.g. /path/to/file.csv -> file. A trailing compression extension is
// stripped too.
func OutputStem(output string) string {
	base := filepath.Base(output)
	for _, ext := range []string{".gz", ".zst"} {
		base = strings.TrimSuffix(base, ext)
	}
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// DefaultChunkDir returns chunks_<stem> next to the output file.
func DefaultChunkDir(output string) string {
	return filepath.Join(filepath.Dir(output), "chunks_"+OutputStem(output))
}
