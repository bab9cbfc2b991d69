package lsp

import (
	"testing"

	"github.com/bastionwaf/bastion/cfgparser"
)

func TestToProtocolDiagnostics(t *testing.T) {
	diags := []cfgparser.Diagnostic{
		{Kind: cfgparser.ErrSyntax, File: "a.conf", Line: 3, Message: "bad token"},
		{Kind: cfgparser.ErrStructural, File: "a.conf", Line: 1, Message: "dangling block"},
	}

	got := toProtocolDiagnostics(diags)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Range.Start.Line != 2 {
		t.Errorf("start line = %d, want 2 (zero-based)", got[0].Range.Start.Line)
	}
	if want := "syntax error: bad token"; got[0].Message != want {
		t.Errorf("message = %q, want %q", got[0].Message, want)
	}
	if got[1].Range.Start.Line != 0 {
		t.Errorf("start line = %d, want 0", got[1].Range.Start.Line)
	}
}

func TestToProtocolDiagnosticsEmpty(t *testing.T) {
	if got := toProtocolDiagnostics(nil); got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestURIToPath(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"file:///etc/bastion/bastion.conf", "/etc/bastion/bastion.conf"},
		{"/plain/path.conf", "/plain/path.conf"},
	}
	for _, tt := range tests {
		got, err := uriToPath(tt.uri)
		if err != nil {
			t.Fatalf("uriToPath(%q) returned %v", tt.uri, err)
		}
		if got != tt.want {
			t.Errorf("uriToPath(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}
