package localparse

import "testing"

func TestParseCSV_Basic(t *testing.T) {
	ok, v := ParseCSV("name,age\nAlice,30\nBob,25\n")
	if !ok {
		t.Fatal("expected ok")
	}
	if len(v) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(v))
	}
	row0, isMap := v[0].(map[string]any)
	if !isMap || row0["name"] != "Alice" || row0["age"] != "30" {
		t.Errorf("got %v", v[0])
	}
}

func TestParseCSV_RequiresCommaAndNewline(t *testing.T) {
	ok, _ := ParseCSV("name,age")
	if ok {
		t.Fatal("expected failure without a line break")
	}
	ok, _ = ParseCSV("name\nage")
	if ok {
		t.Fatal("expected failure without a comma")
	}
}

func TestParseCSV_HeaderSanitized(t *testing.T) {
	ok, v := ParseCSV("First Name,Last Name\nAlice,Smith\n")
	if !ok {
		t.Fatal("expected ok")
	}
	row0 := v[0].(map[string]any)
	if row0["First_Name"] != "Alice" {
		t.Errorf("got %v", row0)
	}
}

func TestParseCSV_RaggedRowsAlignToShorter(t *testing.T) {
	ok, v := ParseCSV("a,b,c\n1,2\n")
	if !ok {
		t.Fatal("expected ok")
	}
	row0 := v[0].(map[string]any)
	if _, has := row0["c"]; has {
		t.Errorf("did not expect column c in short row, got %v", row0)
	}
	if row0["a"] != "1" || row0["b"] != "2" {
		t.Errorf("got %v", row0)
	}
}

func TestParseCSV_CapsAtMaxRows(t *testing.T) {
	input := "h\n"
	for i := 0; i < MaxCSVDataRows+50; i++ {
		input += "v\n"
	}
	input = "h,h2\n"
	for i := 0; i < MaxCSVDataRows+50; i++ {
		input += "1,2\n"
	}
	ok, v := ParseCSV(input)
	if !ok {
		t.Fatal("expected ok")
	}
	if len(v) != MaxCSVDataRows {
		t.Fatalf("expected cap at %d rows, got %d", MaxCSVDataRows, len(v))
	}
}
