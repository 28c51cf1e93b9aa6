package records

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJSONLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.jsonl")

	recs := []*Record{
		{
			StoryID: "s1",
			Obs1:    "Chad's car pulled to the right.",
			Obs2:    "The mechanic fixed the alignment.",
			Hyp1:    "Chad hit a curb.",
			Hyp2:    "Chad washed his car.",
			Label:   "1",
		},
		{StoryID: "s2", Obs1: "a", Obs2: "b"},
	}
	recs[1].AddGeneration("hypogen", "generated text.")

	if err := WriteJSONL(path, recs); err != nil {
		t.Fatal(err)
	}
	got, err := ReadJSONL(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("records: got %d, want 2", len(got))
	}
	if got[0].Reference() != "Chad hit a curb." {
		t.Errorf("reference: got %q", got[0].Reference())
	}
	if got[1].Generations["hypogen"][0] != "generated text." {
		t.Errorf("generations lost in round trip: %+v", got[1].Generations)
	}
}

func TestReadJSONL_SkipsBlankFailsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.jsonl")
	content := `{"obs1":"a","obs2":"b"}

not json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := ReadJSONL(path)
	if err == nil {
		t.Fatal("expected error for malformed line")
	}
	if !strings.Contains(err.Error(), ":3:") {
		t.Errorf("error should carry line number, got %v", err)
	}
}

func TestReference_Unlabeled(t *testing.T) {
	r := &Record{Hyp1: "x", Hyp2: "y"}
	if ref := r.Reference(); ref != "" {
		t.Errorf("unlabeled record reference: got %q, want empty", ref)
	}
}

func TestBuildPrompt(t *testing.T) {
	r := &Record{Obs1: " First observation. ", Obs2: "Second observation."}
	got := BuildPrompt(r)
	want := "First observation. Second observation. <|beginhyp|> "
	if got != want {
		t.Errorf("prompt:\n got %q\nwant %q", got, want)
	}
}

func TestCleanGeneration(t *testing.T) {
	cases := []struct{ in, want string }{
		{"He hit a pothole. Then more text", "He hit a pothole."},
		{" <|beginhyp|> She forgot. trailing", "She forgot."},
		{"no period here", "no period here"},
	}
	for _, tc := range cases {
		if got := CleanGeneration(tc.in); got != tc.want {
			t.Errorf("CleanGeneration(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAppendJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.jsonl")

	if err := AppendJSONL(path, map[string]string{"a": "1"}); err != nil {
		t.Fatal(err)
	}
	if err := AppendJSONL(path, map[string]string{"b": "2"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("rows: got %d, want 2", len(lines))
	}
}
