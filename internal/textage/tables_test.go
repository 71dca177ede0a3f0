package textage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func fixtureTables() *Tables {
	return &Tables{
		Title: map[string][]any{
			"k1": {"-35", "T001", "", "GENRE", "ARTIST", "TITLE", "SUBTITLE"},
			"k2": {"30", "T002", "", "G2", "A2", "SECOND"},
		},
		Data: map[string][]any{
			"k1": {float64(0), float64(101), float64(102), float64(103), float64(104), float64(105), float64(106), float64(107), float64(108), float64(109), float64(110)},
			"k2": {float64(0), float64(201), float64(202), float64(203), float64(204), float64(205), float64(206), float64(207), float64(208), float64(209), float64(210)},
		},
		Act: map[string][]any{
			"k1": {float64(3), float64(0), float64(0), float64(0), float64(0), float64(0), float64(0), float64(0), float64(0), "A", float64(0), float64(0), float64(0), float64(0), float64(0), float64(5), float64(0), float64(8), float64(0), "B", float64(0), float64(0), float64(0), "(AC)"},
			"k2": {float64(1), float64(0), float64(0), float64(0), float64(5), float64(0), float64(0), float64(0), float64(0), float64(0), float64(0)},
		},
	}
}

func TestTables_Song(t *testing.T) {
	tbl := fixtureTables()

	song, err := tbl.Song("k1")
	if err != nil {
		t.Fatalf("Song(k1) failed: %v", err)
	}
	want := &SongRow{
		Tag:       "k1",
		TextageID: "T001",
		Version:   "-35",
		Genre:     "GENRE",
		Artist:    "ARTIST",
		Title:     "TITLE",
		Subtitle:  "SUBTITLE",
		ACActive:  true,
		INFActive: true,
		Qualifier: "(AC)",
	}
	if !reflect.DeepEqual(song, want) {
		t.Errorf("Song(k1) = %+v, want %+v", song, want)
	}

	song2, err := tbl.Song("k2")
	if err != nil {
		t.Fatalf("Song(k2) failed: %v", err)
	}
	if !song2.ACActive || song2.INFActive {
		t.Errorf("k2 flags = ac:%v inf:%v, want ac only", song2.ACActive, song2.INFActive)
	}
	if song2.Qualifier != "" {
		t.Errorf("k2 qualifier = %q, want empty", song2.Qualifier)
	}
}

func TestTables_ChartSlot(t *testing.T) {
	tbl := fixtureTables()

	// chart type 2 (SP NORMAL): level at act[5], notes at data[2].
	level, notes, err := tbl.ChartSlot("k1", 2)
	if err != nil {
		t.Fatalf("ChartSlot failed: %v", err)
	}
	if level != 0 || notes != 102 {
		t.Errorf("slot 2 = level %d notes %d, want 0/102", level, notes)
	}

	// chart type 4: level at act[9] is the hex digit "A".
	level, notes, err = tbl.ChartSlot("k1", 4)
	if err != nil {
		t.Fatalf("ChartSlot failed: %v", err)
	}
	if level != 10 || notes != 104 {
		t.Errorf("slot 4 = level %d notes %d, want 10/104", level, notes)
	}
}

func TestTables_TagsSortedAndComplete(t *testing.T) {
	tbl := fixtureTables()
	tbl.Title["k0"] = []any{"1", "T000", "", "G", "A", "ONLY-IN-TITLE"}

	tags := tbl.Tags()
	if !reflect.DeepEqual(tags, []string{"k0", "k1", "k2"}) {
		t.Errorf("Tags() = %v", tags)
	}
	if tbl.Complete("k0") {
		t.Error("k0 should be incomplete (missing from datatbl/actbl)")
	}
	if !tbl.Complete("k1") {
		t.Error("k1 should be complete")
	}
}

func TestClient_FetchSourcesAndParse(t *testing.T) {
	docs := map[string]string{
		SourceTitleTbl: `titletbl={"k1":[1,"T001","","G","A","TITLE"]};`,
		SourceDataTbl:  `datatbl={"k1":[0,1,2,3,4,5,6,7,8,9,10]};`,
		SourceActTbl:   `actbl={"k1":[1,0,1,0,5,0,5,0,5,0,5,0,0,0,5,0,5,0,5,0,5,0]};`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := docs[r.URL.Path[len("/"):]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", 5*time.Second)
	src, err := client.FetchSources(context.Background())
	if err != nil {
		t.Fatalf("FetchSources() failed: %v", err)
	}

	hashes := src.Hashes()
	for _, name := range []string{SourceTitleTbl, SourceDataTbl, SourceActTbl} {
		if len(hashes[name]) != 64 {
			t.Errorf("hash for %s = %q, want 64 hex chars", name, hashes[name])
		}
	}

	tbl, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	song, err := tbl.Song("k1")
	if err != nil {
		t.Fatalf("Song() failed: %v", err)
	}
	if song.TextageID != "T001" || !song.ACActive {
		t.Errorf("song = %+v", song)
	}
	if tbl.SourceHashes[SourceTitleTbl] != hashes[SourceTitleTbl] {
		t.Error("SourceHashes not carried through Parse")
	}
}
