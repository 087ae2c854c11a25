package agent

import (
	"testing"

	"discordqa/internal/domain"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		approach domain.Approach
		query    string
		wantErr  bool
	}{
		{"rag", `{"approach":"rag"}`, domain.ApproachRAG, "", false},
		{"sql", `{"approach":"sql","sql_query":"SELECT 1"}`, domain.ApproachSQL, "SELECT 1", false},
		{"case and space", `{"approach":" SQL ","sql_query":"SELECT 1"}`, domain.ApproachSQL, "SELECT 1", false},
		{"missing approach", `{"sql_query":"SELECT 1"}`, "", "SELECT 1", false},
		{"unknown approach", `{"approach":"web"}`, "", "", false},
		{"empty args", "", "", "", false},
		{"query kept verbatim", `{"approach":"sql","sql_query":"  SELECT 1  "}`, domain.ApproachSQL, "  SELECT 1  ", false},
		{"wrong type", `{"approach":1}`, "", "", true},
		{"not json", `approach=rag`, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := parseDecision(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if d.Approach != tt.approach || d.SQLQuery != tt.query {
				t.Errorf("got %+v", d)
			}
		})
	}
}
