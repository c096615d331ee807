package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_XSSSignatures(t *testing.T) {
	attacks := []string{
		`<script>alert(1)</script>`,
		`<SCRIPT src="evil.js">`,
		`<iframe src="//evil.example">`,
		`<object data="x">`,
		`<embed src="x">`,
		`click <a href="javascript:alert(1)">here</a>`,
		`vbscript:msgbox(1)`,
		`data:text/html,<h1>x</h1>`,
		`<img src=x onerror=alert(1)>`,
		`width: expression(alert(1))`,
	}
	for _, attack := range attacks {
		assert.ErrorIs(t, Scan(attack), ErrAttackDetected, "input: %s", attack)
	}
}

func TestScan_SQLSignatures(t *testing.T) {
	attacks := []string{
		`' UNION SELECT password FROM users --`,
		`1 union all select * from accounts`,
		`select name, email from users`,
		`; DROP TABLE users`,
		`insert into admins values ('x')`,
		`1 OR 1=1`,
		`' or 'a'='a`,
		`update users set role='admin'`,
		`exec xp_cmdshell`,
	}
	for _, attack := range attacks {
		assert.ErrorIs(t, Scan(attack), ErrAttackDetected, "input: %s", attack)
	}
}

func TestScan_BenignInputPasses(t *testing.T) {
	benign := []string{
		"hello world",
		"a fine selection from the union catalog", // prose, not query shapes
		"<b>bold</b> text",
		"price is 1 < 2 and 3 > 2",
		"user@example.com",
	}
	for _, value := range benign {
		assert.NoError(t, Scan(value), "input: %s", value)
	}
}

func TestClean_RejectsAttacksInAllContexts(t *testing.T) {
	for _, ctx := range []Context{ContextHTML, ContextSQL, ContextGeneral} {
		_, err := Clean(`<script>alert(1)</script>`, ctx)
		assert.ErrorIs(t, err, ErrAttackDetected, "context %s must reject, not strip", ctx)
	}
}

func TestClean_HTMLContext(t *testing.T) {
	t.Run("allowed formatting is preserved without attributes", func(t *testing.T) {
		out, err := Clean(`<b class="x">bold</b> and <em>italic</em>`, ContextHTML)
		require.NoError(t, err)
		assert.Equal(t, "<b>bold</b> and <em>italic</em>", out)
	})

	t.Run("disallowed tags are stripped, content kept", func(t *testing.T) {
		out, err := Clean(`<div><p>text</p></div>`, ContextHTML)
		require.NoError(t, err)
		assert.Equal(t, "<p>text</p>", out)
	})
}

func TestClean_SQLContext(t *testing.T) {
	out, err := Clean(`O'Brien \ path`+"\x00", ContextSQL)
	require.NoError(t, err)
	assert.Equal(t, `O''Brien \\ path`, out)
}

func TestClean_GeneralContext(t *testing.T) {
	t.Run("tags survive as plain text", func(t *testing.T) {
		out, err := Clean("<b>bold</b>", ContextGeneral)
		require.NoError(t, err)
		assert.Equal(t, "<b>bold</b>", out)
	})

	t.Run("control characters are stripped, newline and tab kept", func(t *testing.T) {
		out, err := Clean("line1\nline2\ttab\x01\x02\x7f", ContextGeneral)
		require.NoError(t, err)
		assert.Equal(t, "line1\nline2\ttab", out)
	})
}

func TestComplexity(t *testing.T) {
	assert.Equal(t, 0, Complexity(nil))
	assert.Equal(t, 5, Complexity("hello"))

	body := map[string]any{
		"title": "hi", // key 5 + value 2
		"tags":  []any{"a", "b"},
	}
	// map size 2 + "title"(5) + "hi"(2) + "tags"(4) + slice size 2 + "a" + "b"
	assert.Equal(t, 17, Complexity(body))

	assert.NoError(t, CheckComplexity(body, 100))
	assert.Error(t, CheckComplexity(body, 10))
}

func TestComplexity_DepthBound(t *testing.T) {
	// Nesting past the depth cap costs a constant, not the subtree.
	deep := any("payload-string-that-would-count")
	for i := 0; i < 30; i++ {
		deep = []any{deep}
	}
	assert.Less(t, Complexity(deep), 50)
}
