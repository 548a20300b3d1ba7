package shellquote_test

import (
	"testing"

	"go.crosstest.dev/harness/shellquote"
)

func TestEscape(t *testing.T) {
	for _, c := range []struct {
		in, exp string
	}{
		{``, `''`},
		{` `, `' '`},
		{`\t`, `'\t'`},
		{`\n`, `'\n'`},
		{`ab`, `ab`},
		{`a b`, `'a b'`},
		{`ab `, `'ab '`},
		{` ab`, `' ab'`},
		{`AZaz09@%_+=:,./-`, `AZaz09@%_+=:,./-`},
		{`a!b`, `'a!b'`},
		{`'`, `''"'"''`},
		{`"`, `'"'`},
		{`=foo`, `'=foo'`},
		{`harness's`, `'harness'"'"'s'`},
	} {
		if s := shellquote.Escape(c.in); s != c.exp {
			t.Errorf("Escape(%q) = %q; want %q", c.in, s, c.exp)
		}
	}
}

func TestEscapeSlice(t *testing.T) {
	got := shellquote.EscapeSlice([]string{"cd", "/tmp/work", "&&", "run me"})
	want := `cd /tmp/work '&&' 'run me'`
	if got != want {
		t.Errorf("EscapeSlice = %q; want %q", got, want)
	}
}
