package member

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
)

var (
	errNoHeader        = errors.New("empty file or missing header row")
	errNameRequired    = errors.New("name is required")
	errBadBirthDate    = errors.New("invalid birth date")
	errNameColMissing  = errors.New("no name column found in header")
	birthDateFormats   = []string{"2006-01-02", "02/01/2006", "2/1/2006"}
	trueValues         = map[string]bool{"yes": true, "y": true, "true": true, "1": true, "si": true, "sí": true}
	headerCanonicalMap = map[string]string{
		"censusid": "census_id", "census": "census_id", "censusno": "census_id", "censusnumber": "census_id",
		"name": "name", "fullname": "name",
		"birthdate": "birth_date", "dob": "birth_date", "dateofbirth": "birth_date",
		"group": "group", "patrol": "group", "six": "group", "lodge": "group",
		"allergies": "allergies", "allergy": "allergies",
		"notes": "notes", "remarks": "notes",
		"photoconsent": "photo_consent", "photo": "photo_consent",
		"guardianname": "guardian_name", "parentname": "guardian_name",
		"guardianemail": "guardian_email", "parentemail": "guardian_email",
		"guardianphone": "guardian_phone", "parentphone": "guardian_phone",
		"relationship": "relationship", "guardianrelationship": "relationship",
	}
)

type (
	ImportOptions struct {
		Reader io.Reader
	}

	RowError struct {
		Row   int    `json:"row"` // 1-based, header excluded
		Error string `json:"error"`
	}

	ImportResult struct {
		Created int        `json:"created"`
		Updated int        `json:"updated"`
		Skipped int        `json:"skipped"`
		Errors  []RowError `json:"errors"`
	}

	censusRow struct {
		censusID     string
		name         string
		birthDate    time.Time
		group        string
		allergies    string
		notes        string
		photoConsent bool

		guardianName  string
		guardianEmail string
		guardianPhone string
		relationship  string
	}
)

// ImportCensus reads a census CSV export and upserts members row by row.
// Match order: census_id within the unit, then (name, birth date) within the
// unit. A census_id registered to another unit rejects that row only.
// A row failure never aborts the rest of the file.
func (svc *service) ImportCensus(ctx context.Context, unitID string, opts ImportOptions) (*ImportResult, error) {
	rdr, err := newCensusReader(opts.Reader)
	if err != nil {
		return nil, err
	}

	header, err := rdr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, core.NewValidationError(errNoHeader)
		}
		return nil, errors.Wrap(err, "reading header")
	}
	cols := mapHeader(header)
	if _, ok := cols["name"]; !ok {
		return nil, core.NewValidationError(errNameColMissing)
	}

	res := &ImportResult{Errors: []RowError{}}
	for rowNum := 1; ; rowNum++ {
		record, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: rowNum, Error: err.Error()})
			res.Skipped++
			continue
		}

		row, err := parseCensusRow(cols, record)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: rowNum, Error: err.Error()})
			res.Skipped++
			continue
		}

		created, err := svc.upsertCensusRow(ctx, unitID, row)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: rowNum, Error: err.Error()})
			res.Skipped++
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

// newCensusReader sniffs the delimiter (census exports come both
// semicolon- and comma-delimited) from the first line.
func newCensusReader(r io.Reader) (*csv.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(1024)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "peeking csv")
	}
	firstLine := string(head)
	if i := strings.IndexByte(firstLine, '\n'); i >= 0 {
		firstLine = firstLine[:i]
	}

	rdr := csv.NewReader(br)
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		rdr.Comma = ';'
	}
	rdr.TrimLeadingSpace = true
	rdr.FieldsPerRecord = -1 // ragged rows handled per field
	return rdr, nil
}

func mapHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(h)))
		if canonical, ok := headerCanonicalMap[h]; ok {
			cols[canonical] = i
		}
	}
	return cols
}

func parseCensusRow(cols map[string]int, record []string) (censusRow, error) {
	get := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	row := censusRow{
		censusID:      get("census_id"),
		name:          core.CleanString(get("name")),
		group:         get("group"),
		allergies:     get("allergies"),
		notes:         get("notes"),
		photoConsent:  trueValues[strings.ToLower(get("photo_consent"))],
		guardianName:  core.CleanString(get("guardian_name")),
		guardianEmail: core.CleanString(get("guardian_email"), true /* lower */),
		guardianPhone: core.CleanPhone(get("guardian_phone")),
		relationship:  core.CleanString(get("relationship"), true /* lower */),
	}
	if row.name == "" {
		return censusRow{}, errNameRequired
	}
	if bd := get("birth_date"); bd != "" {
		var parsed bool
		for _, format := range birthDateFormats {
			if t, err := time.Parse(format, bd); err == nil {
				row.birthDate = t.UTC()
				parsed = true
				break
			}
		}
		if !parsed {
			return censusRow{}, errors.Wrap(errBadBirthDate, bd)
		}
	}
	return row, nil
}

func (svc *service) upsertCensusRow(ctx context.Context, unitID string, row censusRow) (created bool, err error) {
	mbr, err := svc.matchCensusRow(ctx, unitID, row)
	if err != nil && err != ErrNotFound {
		return false, err
	}

	now := time.Now().UTC()
	if err == ErrNotFound {
		mbr = Member{
			UnitID:       unitID,
			CensusID:     row.censusID,
			Name:         row.name,
			BirthDate:    row.birthDate,
			Group:        row.group,
			Allergies:    row.allergies,
			Notes:        row.notes,
			PhotoConsent: row.photoConsent,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		mbr.SetActive(true)
		if mbr, err = svc.repo.CreateMember(ctx, mbr); err != nil {
			return false, err
		}
		created = true
	} else {
		mbr.CensusID = row.censusID
		mbr.Name = row.name
		if !row.birthDate.IsZero() {
			mbr.BirthDate = row.birthDate
		}
		if row.group != "" {
			mbr.Group = row.group
		}
		if row.allergies != "" {
			mbr.Allergies = row.allergies
		}
		if row.notes != "" {
			mbr.Notes = row.notes
		}
		mbr.PhotoConsent = row.photoConsent
		mbr.UpdatedAt = now
		if mbr, err = svc.repo.UpdateMember(ctx, mbr); err != nil {
			return false, err
		}
	}

	if err = svc.attachCensusGuardian(ctx, unitID, mbr, row); err != nil {
		return created, err
	}
	return created, nil
}

// matchCensusRow finds the unit member this row refers to, or ErrNotFound.
func (svc *service) matchCensusRow(ctx context.Context, unitID string, row censusRow) (Member, error) {
	if row.censusID != "" {
		taken, err := svc.repo.CensusIDTakenElsewhere(ctx, unitID, row.censusID)
		if err != nil {
			return Member{}, err
		}
		if taken {
			return Member{}, fmt.Errorf("census id %s: %s", row.censusID, ErrCensusIDTaken)
		}
		mbr, err := svc.repo.GetMember(ctx, unitID, GetFilter{CensusID: row.censusID})
		if err == nil {
			return mbr, nil
		}
		if err != ErrNotFound {
			return Member{}, err
		}
	}
	if !row.birthDate.IsZero() {
		return svc.repo.GetMember(ctx, unitID, GetFilter{Name: row.name, BirthDate: row.birthDate})
	}
	return Member{}, ErrNotFound
}

// attachCensusGuardian creates/links the row's guardian when contact columns are present.
func (svc *service) attachCensusGuardian(ctx context.Context, unitID string, mbr Member, row censusRow) error {
	if row.guardianEmail == "" && row.guardianPhone == "" {
		return nil
	}

	var grd Guardian
	var err error
	if row.guardianEmail != "" {
		grd, err = svc.repo.GetGuardian(ctx, unitID, GuardianGetFilter{Email: row.guardianEmail})
	} else {
		err = ErrGuardianNotFound
	}
	if err == ErrGuardianNotFound {
		now := time.Now().UTC()
		name := row.guardianName
		if name == "" {
			name = "Guardian of " + mbr.Name
		}
		grd = Guardian{
			UnitID:    unitID,
			Name:      name,
			Email:     row.guardianEmail,
			Phone:     row.guardianPhone,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if grd, err = svc.repo.CreateGuardian(ctx, grd); err != nil {
			return errors.Wrap(err, "creating guardian")
		}
	} else if err != nil {
		return err
	}

	link := GuardianLink{MemberID: mbr.ID, GuardianID: grd.ID, Relationship: row.relationship}
	return svc.repo.LinkGuardian(ctx, link)
}
