package objectkey

import (
	"fmt"
	"math/rand/v2"
	"path"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the default date prefix layout (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// FileInfo describes the file an object key is derived from.
type FileInfo struct {
	Name string // Display name, e.g. "IMG_0001.jpg"
	Path string // Local path; used as the name when Name is empty
	Size int64
	Type string // MIME type when known
}

// DisplayName returns Name, falling back to Path.
func (f FileInfo) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.Path
}

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates the object key a file is uploaded under
	GenerateKey(file FileInfo) string
}

// HashGenerator produces keys of the form {prefix}{date}/{hash}.{ext}
//
//	test/2024-01-02/t7vh9dh2z30v0000.jpg
//
// The hash mixes the file name, size, type, the current time in milliseconds and a
// short random token, so two uploads of the same file get different keys.
type HashGenerator struct {
	// Prefix is prepended verbatim, e.g. "test/" for a staging bucket area
	Prefix string

	// DatePrefix replaces the date directory when set
	DatePrefix string

	// Now and Random are swappable for deterministic keys in tests
	Now    func() time.Time
	Random func() string
}

func NewHashGenerator(prefix string) *HashGenerator {
	return &HashGenerator{
		Prefix: prefix,
		Now:    time.Now,
		Random: randomToken,
	}
}

func (g *HashGenerator) GenerateKey(file FileInfo) string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	random := randomToken
	if g.Random != nil {
		random = g.Random
	}

	t := now()
	name := file.DisplayName()
	input := fmt.Sprintf("%s-%d-%s-%d-%s", name, file.Size, file.Type, t.UnixMilli(), random())
	hash := SimpleHash(input)

	datePrefix := g.DatePrefix
	if datePrefix == "" {
		datePrefix = t.Format(DateLayout)
	}

	filename := hash
	if ext := Extension(name); ext != "" {
		filename = hash + "." + ext
	}
	return g.Prefix + datePrefix + "/" + filename
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(file FileInfo) string
}

func NewCustomFuncGenerator(fn func(file FileInfo) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *CustomFuncGenerator) GenerateKey(file FileInfo) string {
	return g.GenerateFunc(file)
}

// Extension returns the text after the last dot of the base name, or "" when the name
// has no dot or ends with one. This intentionally differs from taking the last segment
// of a split on ".": a dotless name must not end up in the key as its own extension,
// and "a." must not produce a key with a trailing dot.
func Extension(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return ""
	}
	return sanitizeExtension(base[idx+1:])
}

func sanitizeExtension(ext string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(ext)
}

// randomToken returns six base-36 characters.
func randomToken() string {
	const span = 36 * 36 * 36 * 36 * 36 * 36
	s := strconv.FormatInt(rand.Int64N(span), 36)
	return strings.Repeat("0", 6-len(s)) + s
}
