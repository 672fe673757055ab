package corpus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHTML(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head><title> Admissions </title><style>p { color: red }</style></head>
<body>
  <nav>Home</nav>
  <h1>Graduate   Admissions</h1>
  <p>Applications close <b>January 15</b>.</p>
  <script>track();</script>
  <noscript>Enable JS</noscript>
  <ul><li>Transcripts</li><li>Two letters</li></ul>
  <!-- hidden -->
</body>
</html>`

	title, text, err := extractHTML(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "Admissions", title)
	assert.Equal(t, "Home\nGraduate Admissions\nApplications close January 15.\nTranscripts\nTwo letters", text)
}

func TestExtractTextDispatch(t *testing.T) {
	text, err := ExtractText("a.md", []byte("# Title"))
	require.NoError(t, err)
	assert.Equal(t, "# Title", text)

	text, err = ExtractText("a.txt", []byte("ok\xffok"))
	require.NoError(t, err)
	assert.Equal(t, "okok", text)

	_, err = ExtractText("a.docx", nil)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ExtractText("a.pdf", []byte("%PDF-1.4 garbage"))
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	for name, want := range map[string]bool{
		"a.txt": true, "a.TXT": true, "a.md": true, "a.pdf": true,
		"a.html": true, "a.htm": true, "a.csv": false, "a": false,
	} {
		assert.Equal(t, want, Supported(name), name)
	}
}

func TestSanitizeURL(t *testing.T) {
	assert.Equal(t, "example.edu_a_b", sanitizeURL("https://example.edu/a/b/"))
	assert.Equal(t, "page", sanitizeURL("https:///"))
	assert.Len(t, sanitizeURL("https://example.edu/"+strings.Repeat("x", 200)), 80)
}
