package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractOrderAndDecoding(t *testing.T) {
	fields := Extract(&Request{
		URL:        "/search?q=%3Cb%3E",
		HTTPMethod: "GET",
		UserAgent:  "Mozilla%2F5.0",
		Params:     map[string]any{"z": "last", "a": "%27first"},
		Body:       map[string]any{"n": 42.5, "flag": true, "obj": map[string]any{"x": 1}},
	})

	want := Fields{
		{Name: "url", Value: "/search?q=<b>"},
		{Name: "http_method", Value: "GET"},
		{Name: "user_agent", Value: "Mozilla/5.0"},
		{Name: "param.a", Value: "'first"},
		{Name: "param.z", Value: "last"},
		{Name: "body.flag", Value: "true"},
		{Name: "body.n", Value: "42.5"},
		{Name: "body.obj", Value: ""},
	}
	assert.Equal(t, want, fields)

	v, ok := fields.Get("param.z")
	require.True(t, ok)
	assert.Equal(t, "last", v)
	_, ok = fields.Get("body.missing")
	assert.False(t, ok)
}

func TestExtractEmptyRequest(t *testing.T) {
	fields := Extract(&Request{})
	assert.Equal(t, Fields{
		{Name: "url"},
		{Name: "http_method"},
		{Name: "user_agent"},
	}, fields)
}

func TestUnquote(t *testing.T) {
	cases := map[string]string{
		"":                       "",
		"plain":                  "plain",
		"%3Cscript%3E":           "<script>",
		"..%2f..%2fetc%2fpasswd": "../../etc/passwd",
		"a+b":                    "a+b",
		"100%":                   "100%",
		"%zz%41":                 "%zzA",
		"%4":                     "%4",
		"%E4%BD%A0":              "你",
		"%FF":                    "\uFFFD",
		"a%FFb":                  "a\uFFFDb",
	}
	for in, want := range cases {
		assert.Equal(t, want, Unquote(in), in)
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "abc", Text("abc"))
	assert.Equal(t, "5", Text(float64(5)))
	assert.Equal(t, "0.25", Text(0.25))
	assert.Equal(t, "7", Text(7))
	assert.Equal(t, "false", Text(false))
	assert.Equal(t, "", Text(nil))
	assert.Equal(t, "", Text([]any{"a"}))
}

func TestMatchFirstFieldWins(t *testing.T) {
	fields := Fields{{Name: "a", Value: "nothing"}, {Name: "b", Value: "Say ALERT(1)"}, {Name: "c", Value: "<script>"}}

	f, ok := Match(fields, []string{"<script", "alert("})
	require.True(t, ok)
	assert.Equal(t, Field{Name: "b", Value: "Say ALERT(1)"}, f)

	_, ok = Match(fields, []string{"", "absent"})
	assert.False(t, ok)
}

func TestExtractURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"http://a/b", "http://a/b", true},
		{"  HTTPS://a/b ", "HTTPS://a/b", true},
		{"go to http://x/y", "http://x/y", true},
		{"see https://s and http://h", "http://h", true},
		{"no url here", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractURL(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNewRuleSetOverrides(t *testing.T) {
	rs := NewRuleSet(map[Category][]string{
		CategoryXSS:          {"<IFRAME", ""},
		CategorySuspiciousUA: {},
	})

	assert.Equal(t, []string{"<iframe"}, rs.Patterns(CategoryXSS))
	assert.Empty(t, rs.Patterns(CategorySuspiciousUA))
	assert.Equal(t, DefaultRuleSet().Patterns(CategorySQLI), rs.Patterns(CategorySQLI))

	// copies do not alias the rule set
	p := rs.Patterns(CategoryXSS)
	p[0] = "changed"
	assert.Equal(t, []string{"<iframe"}, rs.Patterns(CategoryXSS))
}

func TestSeverityTable(t *testing.T) {
	assert.Equal(t, SeverityHigh, SeverityOf(AttackSQLI))
	assert.Equal(t, SeverityMedium, SeverityOf(AttackXSS))
	assert.Equal(t, SeverityHigh, SeverityOf(AttackPathTraversal))
	assert.Equal(t, SeverityCritical, SeverityOf(AttackCommandInjection))
	assert.Equal(t, SeverityMedium, SeverityOf(AttackBruteForce))
	assert.Equal(t, SeverityHigh, SeverityOf(AttackSSRF))
	assert.Equal(t, SeverityLow, SeverityOf(AttackSuspiciousUA))
	assert.Equal(t, SeverityLow, SeverityOf(AttackNone))
	assert.Equal(t, SeverityLow, SeverityOf("UNKNOWN"))
}
