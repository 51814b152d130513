package member_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akela-hq/akela/core/member"
	dummydb "github.com/akela-hq/akela/storage/database/dummy"
)

func setup(t *testing.T) (member.Service, member.Repository) {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := dummydb.NewMemberRepository(db)
	return member.NewService(repo), repo
}

func importCSV(t *testing.T, svc member.Service, unitID, csv string) *member.ImportResult {
	t.Helper()

	res, err := svc.ImportCensus(context.Background(), unitID, member.ImportOptions{Reader: strings.NewReader(csv)})
	require.NoError(t, err)
	return res
}

func Test_service_ImportCensus(t *testing.T) {
	ctx := context.Background()

	t.Run("empty file", func(t *testing.T) {
		svc, _ := setup(t)
		_, err := svc.ImportCensus(ctx, "u1", member.ImportOptions{Reader: strings.NewReader("")})
		assert.EqualError(t, err, "empty file or missing header row")
	})

	t.Run("no name column", func(t *testing.T) {
		svc, _ := setup(t)
		_, err := svc.ImportCensus(ctx, "u1", member.ImportOptions{Reader: strings.NewReader("Census ID,Group\nC-1,Red\n")})
		assert.EqualError(t, err, "no name column found in header")
	})

	t.Run("creates members and guardians", func(t *testing.T) {
		svc, _ := setup(t)

		csv := "Census ID,Name,Birth Date,Group,Guardian Name,Guardian Email,Relationship\n" +
			"C-1001,Mowgli Seoni,2015-04-01,Red Six,Raksha Seoni,raksha@jungle.cd,mother\n" +
			"C-1002,Kaa Python,2014-12-12,Blue Six,,,\n"
		res := importCSV(t, svc, "u1", csv)

		assert.Equal(t, 2, res.Created)
		assert.Equal(t, 0, res.Updated)
		assert.Equal(t, 0, res.Skipped)
		assert.Empty(t, res.Errors)

		members, err := svc.Query(ctx, "u1", nil, nil)
		require.NoError(t, err)
		require.Len(t, members, 2)

		mowgli, err := svc.Query(ctx, "u1", &member.QueryFilter{Search: "mowgli"}, nil)
		require.NoError(t, err)
		require.Len(t, mowgli, 1)
		assert.Equal(t, "C-1001", mowgli[0].CensusID)
		assert.Equal(t, "Red Six", mowgli[0].Group)
		assert.Equal(t, time.Date(2015, 4, 1, 0, 0, 0, 0, time.UTC), mowgli[0].BirthDate)

		grds, err := svc.GuardiansOf(ctx, "u1", mowgli[0].ID)
		require.NoError(t, err)
		require.Len(t, grds, 1)
		assert.Equal(t, "raksha@jungle.cd", grds[0].Email)
	})

	t.Run("matches existing member by census id", func(t *testing.T) {
		svc, _ := setup(t)

		importCSV(t, svc, "u1", "Census ID,Name,Birth Date\nC-1,Mowgli Seoni,2015-04-01\n")
		res := importCSV(t, svc, "u1", "Census ID,Name,Birth Date,Group\nC-1,Mowgli M. Seoni,2015-04-01,Red Six\n")

		assert.Equal(t, 0, res.Created)
		assert.Equal(t, 1, res.Updated)

		members, err := svc.Query(ctx, "u1", nil, nil)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, "Mowgli M. Seoni", members[0].Name)
		assert.Equal(t, "Red Six", members[0].Group)
	})

	t.Run("matches existing member by name and birth date", func(t *testing.T) {
		svc, _ := setup(t)

		importCSV(t, svc, "u1", "Name,Birth Date\nBaloo Bear,2014-06-15\n")
		res := importCSV(t, svc, "u1", "Census ID,Name,Birth Date\nC-9,Baloo Bear,2014-06-15\n")

		assert.Equal(t, 0, res.Created)
		assert.Equal(t, 1, res.Updated)

		members, err := svc.Query(ctx, "u1", nil, nil)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, "C-9", members[0].CensusID)
	})

	t.Run("census id registered to another unit rejects the row only", func(t *testing.T) {
		svc, _ := setup(t)

		importCSV(t, svc, "u1", "Census ID,Name,Birth Date\nC-1,Mowgli Seoni,2015-04-01\n")

		csv := "Census ID,Name,Birth Date\n" +
			"C-1,Impostor Cub,2015-04-01\n" +
			"C-2,Bagheera Cat,2015-02-02\n"
		res := importCSV(t, svc, "u2", csv)

		assert.Equal(t, 1, res.Created)
		assert.Equal(t, 1, res.Skipped)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, 1, res.Errors[0].Row)
		assert.Contains(t, res.Errors[0].Error, "registered to another unit")
	})

	t.Run("bad rows are reported but do not abort", func(t *testing.T) {
		svc, _ := setup(t)

		csv := "Name,Birth Date\n" +
			",2015-04-01\n" +
			"Kaa Python,not-a-date\n" +
			"Bagheera Cat,02/02/2015\n"
		res := importCSV(t, svc, "u1", csv)

		assert.Equal(t, 1, res.Created)
		assert.Equal(t, 2, res.Skipped)
		require.Len(t, res.Errors, 2)
		assert.Equal(t, 1, res.Errors[0].Row)
		assert.Equal(t, "name is required", res.Errors[0].Error)
		assert.Equal(t, 2, res.Errors[1].Row)
		assert.Contains(t, res.Errors[1].Error, "invalid birth date")
	})

	t.Run("semicolon delimited export", func(t *testing.T) {
		svc, _ := setup(t)

		csv := "Census ID;Name;Birth Date;Photo Consent\n" +
			"C-1;Mowgli Seoni;01/04/2015;yes\n"
		res := importCSV(t, svc, "u1", csv)

		assert.Equal(t, 1, res.Created)
		members, err := svc.Query(ctx, "u1", nil, nil)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.True(t, members[0].PhotoConsent)
		assert.Equal(t, time.Date(2015, 4, 1, 0, 0, 0, 0, time.UTC), members[0].BirthDate)
	})

	t.Run("guardian matched by email is linked not duplicated", func(t *testing.T) {
		svc, _ := setup(t)

		csv := "Name,Birth Date,Guardian Name,Guardian Email\n" +
			"Mowgli Seoni,2015-04-01,Raksha Seoni,raksha@jungle.cd\n" +
			"Grey Brother,2016-08-20,Raksha Seoni,raksha@jungle.cd\n"
		res := importCSV(t, svc, "u1", csv)

		assert.Equal(t, 2, res.Created)
		grds, err := svc.QueryGuardians(ctx, "u1", "")
		require.NoError(t, err)
		require.Len(t, grds, 1)

		kids, err := svc.MembersOf(ctx, "u1", grds[0].ID)
		require.NoError(t, err)
		assert.Len(t, kids, 2)
	})
}
