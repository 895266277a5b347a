package fields

import (
	"github.com/oklog/ulid/v2"
)

// Default maximum lengths for the semantic helpers.
const (
	IDLength           = 26
	ReferenceIDLength  = 36
	KeyLength          = 200
	TitleLength        = 400
	DescriptionLength  = 800
	ContentLength      = 4000
	LargeContentLength = 10000
	MaxContentLength   = 100000
	VersionLength      = 50
)

// UI component tags attached by helpers.
const (
	ComponentPassword       = "PasswordField"
	ComponentPromptTemplate = "PromptTemplate"
)

// Option customizes a Field built by a helper.
type Option func(*Field)

// WithTitle sets the display title.
func WithTitle(title string) Option {
	return func(f *Field) { f.Title = title }
}

// WithDescription sets the help text.
func WithDescription(description string) Option {
	return func(f *Field) { f.Description = description }
}

// WithMaxLength overrides the default maximum length. Zero removes the bound.
func WithMaxLength(n int) Option {
	return func(f *Field) { f.MaxLength = n }
}

// WithDefault sets the create-time default.
func WithDefault(value any) Option {
	return func(f *Field) { f.Default = value }
}

// WithGenerator sets a create-time value generator.
func WithGenerator(gen Generator) Option {
	return func(f *Field) { f.Generator = gen }
}

// WithItems sets the element kind of an array field.
func WithItems(kind Kind) Option {
	return func(f *Field) { f.Items = kind }
}

// Required marks the field as mandatory on create.
func Required() Option {
	return func(f *Field) { f.Required = true }
}

// Optional clears the required flag.
func Optional() Option {
	return func(f *Field) { f.Required = false }
}

// WithUIComponent names a custom renderer and its props.
func WithUIComponent(tag string, props map[string]any) Option {
	return func(f *Field) {
		f.UI.Component = tag
		f.UI.Props = props
	}
}

// WithUIWidth sets the grid span (1-6).
func WithUIWidth(width int) Option {
	return func(f *Field) { f.UI.Width = width }
}

// WithUIIndex sets the display order.
func WithUIIndex(index int) Option {
	return func(f *Field) { f.UI.Index = index }
}

// NewULID returns a new lexicographically sortable identifier.
func NewULID() any {
	return ulid.Make().String()
}

func build(name string, kind Kind, maxLength int, opts []Option) Field {
	f := Field{Name: name, Kind: kind, MaxLength: maxLength}
	for _, opt := range opts {
		if opt != nil {
			opt(&f)
		}
	}
	return f
}

// ID is a 26 character ULID identifier generated on create.
func ID(name string, opts ...Option) Field {
	base := []Option{WithGenerator(NewULID), WithDescription("Unique identifier")}
	return build(name, KindString, IDLength, append(base, opts...))
}

// ReferenceID holds an identifier of another record (UUID sized).
func ReferenceID(name string, opts ...Option) Field {
	return build(name, KindString, ReferenceIDLength, opts)
}

// Key is a short machine-readable key.
func Key(name string, opts ...Option) Field {
	return build(name, KindString, KeyLength, opts)
}

// Title is a human readable single-line title.
func Title(name string, opts ...Option) Field {
	return build(name, KindString, TitleLength, opts)
}

// Description is a short paragraph.
func Description(name string, opts ...Option) Field {
	return build(name, KindString, DescriptionLength, opts)
}

// Content is medium length text.
func Content(name string, opts ...Option) Field {
	return build(name, KindText, ContentLength, opts)
}

// LargeContent is long text.
func LargeContent(name string, opts ...Option) Field {
	return build(name, KindText, LargeContentLength, opts)
}

// MaxContent is very long text.
func MaxContent(name string, opts ...Option) Field {
	return build(name, KindText, MaxContentLength, opts)
}

// UnlimitedContent is text without a length bound. Any max length option is discarded.
func UnlimitedContent(name string, opts ...Option) Field {
	f := build(name, KindText, 0, opts)
	f.MaxLength = 0
	return f
}

// Version is a short version string.
func Version(name string, opts ...Option) Field {
	return build(name, KindString, VersionLength, opts)
}

// Password is rendered with a masked input.
func Password(name string, opts ...Option) Field {
	base := []Option{WithUIComponent(ComponentPassword, nil)}
	return build(name, KindString, 0, append(base, opts...))
}

// PromptTemplate is long text edited with the prompt template editor.
func PromptTemplate(name string, opts ...Option) Field {
	base := []Option{WithUIComponent(ComponentPromptTemplate, nil)}
	return build(name, KindText, MaxContentLength, append(base, opts...))
}

// Standard builds a field of any kind without preset metadata.
func Standard(name string, kind Kind, opts ...Option) Field {
	return build(name, kind, 0, opts)
}
