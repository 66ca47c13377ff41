package source

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// ============================================================================
// Header normalization and cell access
// ============================================================================

func TestNormalizeColumn(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Code_Etudiant", "code_etudiant"},
		{"  Label Composante ", "label_composante"},
		{"Annee\tUniversitaire", "annee_universitaire"},
		{"\ufeffinstitution_id", "institution_id"},
		{"id  parcours", "id_parcours"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeColumn(tt.input); got != tt.want {
				t.Errorf("NormalizeColumn(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRowGet(t *testing.T) {
	tbl := NewTable("t", []string{"A", "B", "C"}, [][]string{
		{"1", "", "3"},
		{"", " ", ""},
		{"x"},
	}, 1)

	require.Equal(t, 2, tbl.Len(), "blank rows are skipped")

	first := tbl.Rows[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "1", first.Get("a").Value())
	assert.False(t, first.Get("b").IsAbsent())
	assert.True(t, first.Get("b").IsBlank())
	assert.True(t, first.Get("missing").IsAbsent())

	short := tbl.Rows[1]
	assert.Equal(t, 2, short.Index)
	assert.Equal(t, 4, short.Line)
	assert.Equal(t, "x", short.Get("a").Value())
	assert.True(t, short.Get("c").IsAbsent(), "short rows yield absent cells")

	var zero Row
	assert.True(t, zero.Get("a").IsAbsent())
}

func TestRename(t *testing.T) {
	tbl := NewTable("enrollments", []string{"Code_Inscription", "ID Parcours Caractere"}, [][]string{{"I1", "P1"}}, 1)
	tbl.Rename(DefaultAliases[Enrollments])

	assert.True(t, tbl.Has("id_parcours"))
	assert.False(t, tbl.Has("id_parcours_caractere"))
	assert.Equal(t, "P1", tbl.Rows[0].Get("id_parcours").Value())
	assert.Empty(t, tbl.Missing("code_inscription", "id_parcours"))

	both := NewTable("enrollments", []string{"id_parcours", "id_parcours_caractere"}, [][]string{{"canon", "alias"}}, 1)
	both.Rename(DefaultAliases[Enrollments])
	assert.Equal(t, "canon", both.Rows[0].Get("id_parcours").Value(), "canonical column wins")
}

// ============================================================================
// File decoding
// ============================================================================

func TestReadCSVStripsBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "institutions.csv")
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("institution_id,institution_nom\nU1,Test Univ\n")...)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tbl, err := ReadCSV(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"institution_id", "institution_nom"}, tbl.Columns)
	assert.Equal(t, "Test Univ", tbl.Rows[0].Get("institution_nom").Value())
}

func TestReadCSVDecodesLatin1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.csv")
	// "Université" in windows-1252
	require.NoError(t, os.WriteFile(path, []byte("composante,label\nFAC1,Universit\xe9\n"), 0o644))

	tbl, err := ReadCSV(path, "windows-1252")
	require.NoError(t, err)
	assert.Equal(t, "Université", tbl.Rows[0].Get("label").Value())

	_, err = ReadCSV(path, "no-such-charset")
	assert.Error(t, err)
}

func TestReadCSVKeepsInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	require.NoError(t, os.WriteFile(path, []byte("nom\nRa\xffkoto\n"), 0o644))

	tbl, err := ReadCSV(path, "utf-8")
	require.NoError(t, err)
	assert.Equal(t, "Ra\xffkoto", tbl.Rows[0].Get("nom").Value())
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inscriptions.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Code_Etudiant", "Naissance_Date", "Bacc_Annee"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"E001", time.Date(2001, 3, 12, 0, 0, 0, 0, time.UTC), 2019}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	loader := &FileLoader{Files: map[Kind]File{Enrollments: {Path: path}}}
	tbl, err := loader.Load(context.Background(), Enrollments)
	require.NoError(t, err)

	assert.Equal(t, "enrollments", tbl.Name)
	require.Equal(t, 1, tbl.Len())
	row := tbl.Rows[0]
	assert.Equal(t, "E001", row.Get("code_etudiant").Value())
	assert.Equal(t, "2019", row.Get("bacc_annee").Value())

	serial, err := strconv.ParseFloat(row.Get("naissance_date").Value(), 64)
	require.NoError(t, err, "date cells are read as serial numbers")
	got, err := excelize.ExcelDateToTime(serial, false)
	require.NoError(t, err)
	assert.Equal(t, "2001-03-12", got.Format("2006-01-02"))
}

func TestFileLoaderErrors(t *testing.T) {
	loader := &FileLoader{Files: map[Kind]File{
		Metadata:    {Path: filepath.Join(t.TempDir(), "missing.xlsx")},
		Enrollments: {Path: "data.json"},
	}}
	ctx := context.Background()

	_, err := loader.Load(ctx, Institutions)
	assert.Error(t, err, "unconfigured source")

	_, err = loader.Load(ctx, Metadata)
	assert.Error(t, err, "missing file")

	_, err = loader.Load(ctx, Enrollments)
	assert.ErrorContains(t, err, "unsupported source format")

	_, err = StaticLoader{}.Load(ctx, Metadata)
	assert.Error(t, err)
}
