package votes

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bilingualHeader = `Electoral District Number/Numéro de circonscription,` +
	`Electoral District Name_English/Nom de circonscription_Anglais,` +
	`Electoral District Name_French/Nom de circonscription_Français,` +
	`Polling Station Number/Numéro du bureau de scrutin,` +
	`Polling Station Name/Nom du bureau de scrutin,` +
	`Void Poll Indicator/Indicateur de bureau supprimé,` +
	`No Poll Held Indicator/Indicateur de bureau sans scrutin,` +
	`Merge With/Fusionné avec,` +
	`Rejected Ballots for Polling Station/Bulletins rejetés du bureau,` +
	`Electors for Polling Station/Électeurs du bureau,` +
	`Candidate's Family Name/Nom de famille du candidat,` +
	`Candidate's Middle Name/Second prénom du candidat,` +
	`Candidate's First Name/Prénom du candidat,` +
	`Political Affiliation Name_English/Appartenance politique_Anglais,` +
	`Political Affiliation Name_French/Appartenance politique_Français,` +
	`Incumbent Indicator/Indicateur_Candidat sortant,` +
	`Elected Candidate Indicator/Indicateur du candidat élu,` +
	`Candidate Poll Votes Count/Votes du candidat pour le bureau`

func resultsRow(station, family, first, partyEN, partyFR, votes string) string {
	return strings.Join([]string{
		"13003", "Fredericton", "Fredericton", station, "Centre", "N", "N", "", "2", "400",
		family, "", first, partyEN, partyFR, "N", "N", votes,
	}, ",")
}

func TestReadRecords(t *testing.T) {
	csv := bilingualHeader + "\n" +
		resultsRow(" 101A ", "Smith", "Ann", "Liberal", "Parti libéral", "30") + "\n" +
		resultsRow("101A", "Jones", "Bob", "Green Party", "Parti Vert", "10") + "\n" +
		"\n" +
		resultsRow("102", "Smith", "Ann", "Liberal", "Parti libéral", "") + "\n"

	records, err := ReadRecords(context.Background(), strings.NewReader(csv), ReadOptions{})
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, 13003, first.Riding)
	assert.Equal(t, "101A", first.Station)
	assert.Equal(t, "Ann", first.FirstName)
	assert.Equal(t, "Smith", first.FamilyName)
	assert.Equal(t, "Liberal", first.Affiliation)
	assert.Equal(t, 30, first.Votes)
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "Ann Smith / Liberal", first.CandidateKey())

	assert.Equal(t, 0, records[2].Votes, "empty count is treated as zero")
}

func TestReadRecords_Windows1252(t *testing.T) {
	// "Hélène" and "Bloc Québécois" encoded as Windows-1252.
	csv := bilingualHeader + "\n" +
		resultsRow("1", "Roy", "H\xe9l\xe8ne", "Bloc Qu\xe9b\xe9cois", "Bloc Qu\xe9b\xe9cois", "12") + "\n"

	records, err := ReadRecords(context.Background(), strings.NewReader(csv), ReadOptions{Encoding: "windows-1252"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Hélène", records[0].FirstName)
	assert.Equal(t, "Hélène Roy / Bloc Québécois", records[0].CandidateKey())
}

func TestReadRecords_UnknownEncoding(t *testing.T) {
	_, err := ReadRecords(context.Background(), strings.NewReader(bilingualHeader), ReadOptions{Encoding: "klingon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported encoding "klingon"`)
}

func TestReadRecords_MissingColumn(t *testing.T) {
	header := strings.Replace(bilingualHeader, "Candidate Poll Votes Count/Votes du candidat pour le bureau", "Votes", 1)

	_, err := ReadRecords(context.Background(), strings.NewReader(header+"\n"), ReadOptions{})
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []string{ColVotes}, schemaErr.Missing)
}

func TestReadRecords_EmptyInput(t *testing.T) {
	_, err := ReadRecords(context.Background(), strings.NewReader(""), ReadOptions{})
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, RequiredColumns, schemaErr.Missing)
}

func TestReadRecords_BadVoteCount(t *testing.T) {
	csv := bilingualHeader + "\n" + resultsRow("1", "Roy", "Ann", "Liberal", "Libéral", "twelve") + "\n"

	_, err := ReadRecords(context.Background(), strings.NewReader(csv), ReadOptions{})
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 2, rowErr.Line)
	assert.Equal(t, ColVotes, rowErr.Column)
	assert.Equal(t, "twelve", rowErr.Value)
}

func TestReadRecords_NegativeVoteCount(t *testing.T) {
	csv := bilingualHeader + "\n" + resultsRow("1", "Roy", "Ann", "Liberal", "Libéral", "-4") + "\n"

	_, err := ReadRecords(context.Background(), strings.NewReader(csv), ReadOptions{})
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Contains(t, rowErr.Error(), "negative vote count")
}

func TestReadRecords_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	csv := bilingualHeader + "\n" + resultsRow("1", "Roy", "Ann", "Liberal", "Libéral", "4") + "\n"
	_, err := ReadRecords(ctx, strings.NewReader(csv), ReadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pollresults_resultatsbureau13003.csv")
	csv := bilingualHeader + "\n" + resultsRow("1", "Roy", "Ann", "Liberal", "Libéral", "4") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	records, err := ReadFile(context.Background(), path, ReadOptions{Encoding: "utf-8"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), ReadOptions{})
	assert.Error(t, err)
}

func TestCleanHeaderName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Polling Station Number/Numéro du bureau de scrutin", "Polling Station Number", true},
		{"Political Affiliation Name_English/Appartenance politique_Anglais", "Political Affiliation Name", true},
		{"Political Affiliation Name_French/Appartenance politique_Français", "", false},
		{"Candidate\u2019s First Name/Prénom du candidat", "Candidate's First Name", true},
		{"\ufeffElectoral District Number/Numéro de circonscription", "Electoral District Number", true},
		{"Merge With/Fusionné avec", "", false},
		{"Candidate's Middle Name/Second prénom du candidat", "", false},
	}
	for _, tt := range tests {
		got, ok := CleanHeaderName(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCheckRiding(t *testing.T) {
	records := []VoteRecord{{Riding: 13003, Line: 2}, {Riding: 13008, Line: 3}}

	assert.NoError(t, CheckRiding(records[:1], 13003))

	err := CheckRiding(records, 13003)
	var mismatch *RidingMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 13008, mismatch.Got)
	assert.Equal(t, 3, mismatch.Line)
}
