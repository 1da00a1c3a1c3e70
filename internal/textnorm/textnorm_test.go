package textnorm

import "testing"

func TestNormalize(t *testing.T) {
	n := New(map[string]string{"SQL": "sequel", "k8s": "kubernetes"})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"strips tags", "read <b>this</b> aloud", "read this aloud"},
		{"collapses whitespace", "too   many\n\nspaces\there", "too many spaces here"},
		{"trims edges", "  padded  ", "padded"},
		{"pronunciation override", "the SQL database", "the sequel database"},
		{"multiple overrides", "SQL on k8s", "sequel on kubernetes"},
		{"tags then overrides", "<code>SQL</code> query", "sequel query"},
		{"empty", "", ""},
		{"only markup", "<div><span></span></div>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeNoPronunciations(t *testing.T) {
	n := New(nil)
	if got := n.Normalize("just  text"); got != "just text" {
		t.Errorf("Normalize() = %q, want %q", got, "just text")
	}
}

func TestSSML(t *testing.T) {
	n := New(nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"wraps in speak", "hello", "<speak>hello</speak>"},
		{"escapes ampersand", "salt & pepper", "<speak>salt &amp; pepper</speak>"},
		{"escapes quotes", `say "hi"`, "<speak>say &quot;hi&quot;</speak>"},
		{"markup stripped before escaping", "a <b>bold</b> claim", "<speak>a bold claim</speak>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.SSML(tt.in); got != tt.want {
				t.Errorf("SSML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
