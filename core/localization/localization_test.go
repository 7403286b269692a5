package localization

import (
	"strings"
	"testing"
)

// row20 builds a data line with the given key and english value and empty
// remaining columns.
func row20(key, english string) string {
	fields := make([]string, MinColumns)
	fields[0] = key
	fields[1] = "items.xml"
	fields[2] = "Item"
	fields[5] = english
	return strings.Join(fields, ",")
}

func TestParse(t *testing.T) {
	content := Header() + "\n" +
		row20("gunPistol", "Pistol") + "\n" +
		row20("gunRifle", "Rifle") + "\n"

	rows, problems := Parse(content, "Alpha", "id-1", "/mods/alpha/Config/Localization.txt", "Localization.txt")
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	r := rows[0]
	if r.Key() != "gunPistol" {
		t.Errorf("Key = %q", r.Key())
	}
	if r.Value("english") != "Pistol" {
		t.Errorf("english = %q", r.Value("english"))
	}
	if r.ModletName != "Alpha" || r.ModletID != "id-1" {
		t.Errorf("owner not stamped: %+v", r)
	}
}

func TestParseSkipsHeaderUnconditionally(t *testing.T) {
	// Even a non-standard first line is treated as the header and dropped.
	content := "this is not a real header\n" + row20("k", "v") + "\n"
	rows, _ := Parse(content, "m", "id", "p", "s")
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
}

func TestParseSkipsCommentsAndBlanks(t *testing.T) {
	content := Header() + "\n" +
		"\n" +
		"# a comment line with trailing junk,x,y\n" +
		row20("kept", "Kept") + "\n" +
		"\n"

	rows, problems := Parse(content, "m", "id", "p", "s")
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if len(rows) != 1 || rows[0].Key() != "kept" {
		t.Fatalf("expected only the kept row, got %d", len(rows))
	}
}

func TestParseColumnCount(t *testing.T) {
	tests := []struct {
		name     string
		fields   int
		wantRows int
		wantErrs int
	}{
		{"19 fields rejected", 19, 0, 1},
		{"20 fields accepted", 20, 1, 0},
		{"23 fields accepted, extras ignored", 23, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := make([]string, tt.fields)
			fields[0] = "someKey"
			for i := 1; i < tt.fields; i++ {
				fields[i] = "x"
			}
			content := Header() + "\n" + strings.Join(fields, ",") + "\n"

			rows, problems := Parse(content, "m", "id", "p", "s")
			if len(rows) != tt.wantRows {
				t.Errorf("got %d rows, want %d", len(rows), tt.wantRows)
			}
			if len(problems) != tt.wantErrs {
				t.Errorf("got %d problems, want %d: %v", len(problems), tt.wantErrs, problems)
			}
			if tt.fields > MinColumns && len(rows) == 1 {
				if got := len(rows[0].Fields()); got != MinColumns {
					t.Errorf("row retained %d fields, want %d", got, MinColumns)
				}
			}
		})
	}
}

func TestParseQuotedFields(t *testing.T) {
	fields := make([]string, MinColumns)
	fields[0] = "keyWithComma"
	fields[5] = `"Hello, survivor"`
	content := Header() + "\n" + strings.Join(fields, ",") + "\n"

	rows, problems := Parse(content, "m", "id", "p", "s")
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	if got := rows[0].Value("english"); got != "Hello, survivor" {
		t.Errorf("quoted field not unescaped: %q", got)
	}
}

func TestValueCaseInsensitive(t *testing.T) {
	fields := make([]string, MinColumns)
	fields[0] = "k"
	fields[7] = "Pistole"
	row, err := NewRow("m", "id", "p", "s", fields)
	if err != nil {
		t.Fatal(err)
	}

	if row.Value("german") != "Pistole" {
		t.Error("lowercase lookup failed")
	}
	if row.Value("German") != "Pistole" {
		t.Error("mixed-case lookup failed")
	}
	if row.Value("GERMAN") != "Pistole" {
		t.Error("uppercase lookup failed")
	}
	if row.Value("nonexistent") != "" {
		t.Error("unknown column should return empty string")
	}
}

func TestHeaderShape(t *testing.T) {
	if len(ExpectedHeader) != MinColumns {
		t.Fatalf("header has %d columns, want %d", len(ExpectedHeader), MinColumns)
	}
	if len(TargetLanguages) != 13 {
		t.Errorf("got %d target languages, want 13", len(TargetLanguages))
	}
	if TargetLanguages[0] != "german" || TargetLanguages[len(TargetLanguages)-1] != "spanish" {
		t.Errorf("unexpected target language bounds: %v", TargetLanguages)
	}
	if QuotedColumns[0] != "english" || QuotedColumns[1] != "Context / Alternate Text" {
		t.Errorf("unexpected quoted columns: %v", QuotedColumns)
	}
	if !strings.HasPrefix(Header(), "Key,File,Type,UsedInMainMenu,NoTranslate,english,") {
		t.Errorf("unexpected header: %s", Header())
	}
}

func TestNewRowRejectsShort(t *testing.T) {
	if _, err := NewRow("m", "id", "p", "s", make([]string, 19)); err == nil {
		t.Error("expected error for 19 fields")
	}
}
