package textage

import "testing"

func TestExtractTable_MinimalTitleTbl(t *testing.T) {
	js := `
	SS=35;
	titletbl={
	  'k1':[SS,"T001","","GENRE","ARTIST","TITLE"]
	};
	`
	parsed, err := ExtractTable(js, "titletbl")
	if err != nil {
		t.Fatalf("ExtractTable() failed: %v", err)
	}

	row, ok := parsed["k1"]
	if !ok {
		t.Fatalf("k1 missing from parsed table: %v", parsed)
	}
	if row[0] != "-35" {
		t.Errorf("version cell = %v, want \"-35\"", row[0])
	}
	if row[1] != "T001" {
		t.Errorf("id cell = %v, want \"T001\"", row[1])
	}
}

func TestExtractTable_DataAndActTbl(t *testing.T) {
	dataJS := `datatbl={"k1":[0,101,102,103,104,105,106,107,108,109,110]};`
	actJS := `actbl={"k1":[3,0,5,0,"A",0,5,0,5,0,5,0,0,0,5,0,5,0,5,0,5,0]};`

	data, err := ExtractTable(dataJS, "datatbl")
	if err != nil {
		t.Fatalf("ExtractTable(datatbl) failed: %v", err)
	}
	if got := data["k1"][1].(float64); got != 101 {
		t.Errorf("datatbl[k1][1] = %v, want 101", got)
	}

	act, err := ExtractTable(actJS, "actbl")
	if err != nil {
		t.Fatalf("ExtractTable(actbl) failed: %v", err)
	}
	if got := act["k1"][0].(float64); got != 3 {
		t.Errorf("actbl[k1][0] = %v, want 3", got)
	}
	if got := act["k1"][4].(string); got != "A" {
		t.Errorf("actbl[k1][4] = %v, want \"A\" (bare hex digit quoted)", got)
	}
}

func TestExtractTable_MissingVarname(t *testing.T) {
	if _, err := ExtractTable("var a={};", "titletbl"); err == nil {
		t.Fatal("expected error for missing varname")
	}
}

func TestExtractTable_TrailingCommentWithoutNewline(t *testing.T) {
	js := `datatbl={"k1":[0,1,2]}; // trailing comment without newline`
	parsed, err := ExtractTable(js, "datatbl")
	if err != nil {
		t.Fatalf("ExtractTable() failed: %v", err)
	}
	if got := parsed["k1"][1].(float64); got != 1 {
		t.Errorf("datatbl[k1][1] = %v, want 1", got)
	}
}

func TestExtractTable_FontcolorAndComments(t *testing.T) {
	js := `
	titletbl={
	  // new songs
	  "k1":[1,"T001","","G","A","NAME".fontcolor('#fc0')],
	  "k2":[2,"T002","","G","A","OTHER"]
	};
	`
	parsed, err := ExtractTable(js, "titletbl")
	if err != nil {
		t.Fatalf("ExtractTable() failed: %v", err)
	}
	if got := parsed["k1"][5]; got != "NAME" {
		t.Errorf("title cell = %v, want \"NAME\" (fontcolor stripped)", got)
	}
	if _, ok := parsed["k2"]; !ok {
		t.Error("k2 missing after comment stripping")
	}
}

func TestExtractTable_TitleTblSkipsBrokenEntry(t *testing.T) {
	js := `
	titletbl={
	  "bad":[1,"T001","","G","A",],
	  "good":[2,"T002","","G","A","TITLE"]
	};
	`
	parsed, err := ExtractTable(js, "titletbl")
	if err != nil {
		t.Fatalf("ExtractTable() failed: %v", err)
	}
	if _, ok := parsed["bad"]; ok {
		t.Error("broken entry should be skipped")
	}
	if _, ok := parsed["good"]; !ok {
		t.Error("good entry should survive")
	}
}

func TestExtractTable_ControlCharInsideString(t *testing.T) {
	js := "datatbl={\"k1\":[0,\"a\tb\"]};"
	parsed, err := ExtractTable(js, "datatbl")
	if err != nil {
		t.Fatalf("ExtractTable() failed: %v", err)
	}
	if got := parsed["k1"][1].(string); got != "a\tb" {
		t.Errorf("string cell = %q, want %q", got, "a\tb")
	}
}

func TestHexInt(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{float64(12), 12},
		{"A", 10},
		{"12", 18},
		{"0", 0},
	}
	for _, tt := range tests {
		got, err := hexInt(tt.in)
		if err != nil {
			t.Fatalf("hexInt(%v) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("hexInt(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if _, err := hexInt("xyz"); err == nil {
		t.Error("expected error for non-hex string")
	}
}
