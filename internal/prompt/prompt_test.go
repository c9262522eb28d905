package prompt

import (
	"strings"
	"testing"
)

func TestParseYesNo(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"explicit yes", "Reasoning about the columns.\nAnswer: yes", true},
		{"explicit no", "answer: NO", false},
		{"bold answer", "Answer: **Yes**, the grouping is unclear.", true},
		{"literal yes first", "YES. The question does not name the output columns.", true},
		{"literal no first", "No ambiguity here, yes the join is obvious.", false},
		{"unparseable", "the schema has three tables", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseYesNo(tc.in); got != tc.want {
				t.Fatalf("ParseYesNo(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseClarificationQuestion(t *testing.T) {
	marked := "The grouping key is unclear. 'AmbTableColumn' remains.\n" +
		`mul_choice_cq = "Which column holds the artist name? a) artist, b) groupName, c) other (please specify)."`
	got := ParseClarificationQuestion(marked)
	if !strings.HasPrefix(got, "Which column holds the artist name?") {
		t.Fatalf("marked question = %q", got)
	}
	if strings.Contains(got, `"`) {
		t.Fatalf("quotes not stripped: %q", got)
	}

	if got := ParseClarificationQuestion("All constraints are resolved. NO AMBIGUITY"); got != "" {
		t.Fatalf("no-ambiguity verdict parsed as %q", got)
	}

	bare := "Should ties be included? a) yes, b) no, c) other (please specify)."
	if got := ParseClarificationQuestion(bare); got != bare {
		t.Fatalf("short completion = %q, want pass-through", got)
	}

	long := "line one\nline two\nline three\nline four\nline five\nWhich year format applies? a) season, b) calendar year, c) other."
	if got := ParseClarificationQuestion(long); !strings.HasPrefix(got, "Which year format applies?") {
		t.Fatalf("long completion = %q", got)
	}
}

func TestParseClarificationAnswer(t *testing.T) {
	marked := "The gold query selects PlayerName only. Hence a is correct.\n" +
		`answer_to_cq = "a) one column of player name"`
	if got := ParseClarificationAnswer(marked); got != "a) one column of player name" {
		t.Fatalf("marked answer = %q", got)
	}

	plain := "some reasoning\nb) rank by the total number of downloads"
	if got := ParseClarificationAnswer(plain); got != "b) rank by the total number of downloads" {
		t.Fatalf("plain answer = %q", got)
	}
}

func TestInitialPrompt(t *testing.T) {
	examples := FormatExamples([]Example{{Question: "How many cities?", SQL: "SELECT COUNT(*) FROM city"}})
	req := Initial("How many airports are in Portugal?", "CREATE TABLE airport (id, country)", examples)
	if req.Kind != KindInitial {
		t.Fatalf("kind = %v", req.Kind)
	}
	for _, want := range []string{
		"Complete sqlite SQL query only and with no explanation",
		"CREATE TABLE airport",
		"How many airports are in Portugal?",
		"/* Example */",
	} {
		if !strings.Contains(req.Text, want) {
			t.Fatalf("initial prompt missing %q:\n%s", want, req.Text)
		}
	}
}

func TestSelfDebugPromptCarriesHistory(t *testing.T) {
	prior := []string{"SELECT 1", "SELECT 2"}
	req := SelfDebug("q", "schema", prior, SelfDebugShots()[0])
	if req.Kind != KindSelfDebug {
		t.Fatalf("kind = %v", req.Kind)
	}
	for _, sql := range prior {
		if !strings.Contains(req.Text, sql) {
			t.Fatalf("history entry %q missing", sql)
		}
	}
	if !strings.Contains(req.Text, "In which year were most departments established?") {
		t.Fatal("few-shot prefix missing")
	}
}

func TestClarifyAskPrompt(t *testing.T) {
	req := ClarifyAsk("q", "schema", []string{"SELECT a", "SELECT b"}, nil)
	if req.Kind != KindClarifyAsk {
		t.Fatalf("kind = %v", req.Kind)
	}
	if !strings.Contains(req.Text, "SELECT a;\nSELECT b") {
		t.Fatal("prior queries not joined with semicolons")
	}
	if !strings.Contains(req.Text, "no previous clarification question.") {
		t.Fatal("empty exchange placeholder missing")
	}
	if !strings.Contains(req.Text, "mul_choice_cq =") {
		t.Fatal("few-shot examples missing")
	}
}

func TestFormatExchanges(t *testing.T) {
	got := FormatExchanges([]Exchange{{Question: "Which league?", Answer: "b) Premier League only"}})
	if !strings.Contains(got, "multiple choice clarification question: Which league?") ||
		!strings.Contains(got, "user: b) Premier League only") {
		t.Fatalf("exchanges = %q", got)
	}
}

func TestSelfDebugShots(t *testing.T) {
	shots := SelfDebugShots()
	if len(shots) != 3 {
		t.Fatalf("len(shots) = %d", len(shots))
	}
	for i := 1; i < len(shots); i++ {
		if !strings.HasPrefix(shots[i], shots[i-1][:20]) {
			t.Fatalf("shot %d does not extend shot %d", i, i-1)
		}
		if len(shots[i]) <= len(shots[i-1]) {
			t.Fatalf("shot %d not longer than shot %d", i, i-1)
		}
	}
	if strings.Contains(shots[0], "INTERSECT") {
		t.Fatal("first shot should contain only one example")
	}
}

func TestKindString(t *testing.T) {
	if KindSelfDebug.String() != "self_debug" || KindAmbiguityCheck.String() != "ambiguity_check" {
		t.Fatal("unexpected kind names")
	}
}
