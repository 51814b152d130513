package member

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
)

var (
	// errors
	ErrNotFound         = errors.New("member not found")
	ErrGuardianNotFound = errors.New("guardian not found")
	ErrCensusIDTaken    = errors.New("this census id is registered to another unit")
)

type (
	Repository interface {
		CreateMember(ctx context.Context, mbr Member, exec ...core.DBExecutor) (Member, error)
		GetMember(ctx context.Context, unitID string, filter GetFilter, exec ...core.DBExecutor) (Member, error)
		// QueryMembers applies AND operation on available QueryFilter fields.
		QueryMembers(ctx context.Context, unitID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Member, error)
		UpdateMember(ctx context.Context, mbr Member, exec ...core.DBExecutor) (Member, error)
		DeleteMembersByID(ctx context.Context, unitID string, ids []string, exec ...core.DBExecutor) (int, error)
		// CensusIDTakenElsewhere reports whether censusID belongs to a member of another unit.
		CensusIDTakenElsewhere(ctx context.Context, unitID, censusID string, exec ...core.DBExecutor) (bool, error)

		CreateGuardian(ctx context.Context, grd Guardian, exec ...core.DBExecutor) (Guardian, error)
		GetGuardian(ctx context.Context, unitID string, filter GuardianGetFilter, exec ...core.DBExecutor) (Guardian, error)
		QueryGuardians(ctx context.Context, unitID, search string, exec ...core.DBExecutor) ([]Guardian, error)
		UpdateGuardian(ctx context.Context, grd Guardian, exec ...core.DBExecutor) (Guardian, error)
		DeleteGuardian(ctx context.Context, unitID, id string, exec ...core.DBExecutor) error

		LinkGuardian(ctx context.Context, link GuardianLink, exec ...core.DBExecutor) error
		UnlinkGuardian(ctx context.Context, memberID, guardianID string, exec ...core.DBExecutor) error
		QueryGuardiansForMember(ctx context.Context, memberID string, exec ...core.DBExecutor) ([]Guardian, error)
		QueryMembersForGuardian(ctx context.Context, guardianID string, exec ...core.DBExecutor) ([]Member, error)
	}

	Service interface {
		Create(ctx context.Context, unitID string, nm NewMember) (Member, error)
		GetByID(ctx context.Context, unitID, id string) (Member, error)
		Query(ctx context.Context, unitID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Member, error)
		Update(ctx context.Context, unitID, id string, um UpdateMember) (Member, error)
		Delete(ctx context.Context, unitID string, ids ...string) error

		CreateGuardian(ctx context.Context, unitID string, ng NewGuardian) (Guardian, error)
		GetGuardianByID(ctx context.Context, unitID, id string) (Guardian, error)
		QueryGuardians(ctx context.Context, unitID, search string) ([]Guardian, error)
		UpdateGuardian(ctx context.Context, unitID, id string, ug UpdateGuardian) (Guardian, error)
		DeleteGuardian(ctx context.Context, unitID, id string) error

		LinkGuardian(ctx context.Context, unitID, memberID, guardianID, relationship string) error
		UnlinkGuardian(ctx context.Context, unitID, memberID, guardianID string) error
		GuardiansOf(ctx context.Context, unitID, memberID string) ([]Guardian, error)
		MembersOf(ctx context.Context, unitID, guardianID string) ([]Member, error)

		ImportCensus(ctx context.Context, unitID string, opts ImportOptions) (*ImportResult, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, unitID string, nm NewMember) (Member, error) {
	if nm.CensusID != "" {
		taken, err := svc.repo.CensusIDTakenElsewhere(ctx, unitID, nm.CensusID)
		if err != nil {
			return Member{}, errors.Wrap(err, "checking census id")
		}
		if taken {
			return Member{}, core.NewValidationError(ErrCensusIDTaken, core.FieldError{Field: "census_id", Error: ErrCensusIDTaken.Error()})
		}
	}
	now := time.Now().UTC()
	mbr := Member{
		UnitID:       unitID,
		CensusID:     nm.CensusID,
		Name:         nm.Name,
		BirthDate:    nm.BirthDate,
		Group:        nm.Group,
		Allergies:    nm.Allergies,
		Notes:        nm.Notes,
		PhotoConsent: nm.PhotoConsent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	mbr.SetActive(true)
	return svc.repo.CreateMember(ctx, mbr)
}

func (svc *service) GetByID(ctx context.Context, unitID, id string) (Member, error) {
	return svc.repo.GetMember(ctx, unitID, GetFilter{ID: id})
}

func (svc *service) Query(ctx context.Context, unitID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Member, error) {
	return svc.repo.QueryMembers(ctx, unitID, filter, ordering)
}

func (svc *service) Update(ctx context.Context, unitID, id string, um UpdateMember) (Member, error) {
	orig, err := svc.repo.GetMember(ctx, unitID, GetFilter{ID: id})
	if err != nil {
		return Member{}, err
	}
	mbr := orig
	mbr.Name = um.Name
	mbr.CensusID = um.CensusID
	if um.BirthDate != nil {
		mbr.BirthDate = *um.BirthDate
	}
	if um.Group != nil {
		mbr.Group = *um.Group
	}
	if um.Allergies != nil {
		mbr.Allergies = *um.Allergies
	}
	if um.Notes != nil {
		mbr.Notes = *um.Notes
	}
	if um.PhotoConsent != nil {
		mbr.PhotoConsent = *um.PhotoConsent
	}
	if um.IsActive != nil {
		mbr.IsActive = um.IsActive
	}
	mbr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateMember(ctx, mbr)
}

func (svc *service) Delete(ctx context.Context, unitID string, ids ...string) error {
	_, err := svc.repo.DeleteMembersByID(ctx, unitID, ids)
	return err
}

func (svc *service) CreateGuardian(ctx context.Context, unitID string, ng NewGuardian) (Guardian, error) {
	now := time.Now().UTC()
	grd := Guardian{
		UnitID:        unitID,
		Name:          ng.Name,
		Email:         ng.Email,
		Phone:         ng.Phone,
		WhatsAppOptIn: ng.WhatsAppOptIn,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	grd, err := svc.repo.CreateGuardian(ctx, grd)
	if err != nil {
		return Guardian{}, err
	}
	if ng.MemberID != "" {
		// linked member must belong to the same unit
		if _, err = svc.repo.GetMember(ctx, unitID, GetFilter{ID: ng.MemberID}); err != nil {
			return Guardian{}, err
		}
		link := GuardianLink{MemberID: ng.MemberID, GuardianID: grd.ID, Relationship: ng.Relationship}
		if err = svc.repo.LinkGuardian(ctx, link); err != nil {
			return Guardian{}, errors.Wrap(err, "linking guardian")
		}
	}
	return grd, nil
}

func (svc *service) GetGuardianByID(ctx context.Context, unitID, id string) (Guardian, error) {
	return svc.repo.GetGuardian(ctx, unitID, GuardianGetFilter{ID: id})
}

func (svc *service) QueryGuardians(ctx context.Context, unitID, search string) ([]Guardian, error) {
	return svc.repo.QueryGuardians(ctx, unitID, core.CleanString(search))
}

func (svc *service) UpdateGuardian(ctx context.Context, unitID, id string, ug UpdateGuardian) (Guardian, error) {
	orig, err := svc.repo.GetGuardian(ctx, unitID, GuardianGetFilter{ID: id})
	if err != nil {
		return Guardian{}, err
	}
	grd := orig
	grd.Name = ug.Name
	grd.Email = ug.Email
	grd.Phone = ug.Phone
	if ug.WhatsAppOptIn != nil {
		grd.WhatsAppOptIn = *ug.WhatsAppOptIn
	}
	if ug.PushSub != nil {
		grd.PushSub = *ug.PushSub
	}
	grd.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateGuardian(ctx, grd)
}

func (svc *service) DeleteGuardian(ctx context.Context, unitID, id string) error {
	return svc.repo.DeleteGuardian(ctx, unitID, id)
}

func (svc *service) LinkGuardian(ctx context.Context, unitID, memberID, guardianID, relationship string) error {
	if _, err := svc.repo.GetMember(ctx, unitID, GetFilter{ID: memberID}); err != nil {
		return err
	}
	if _, err := svc.repo.GetGuardian(ctx, unitID, GuardianGetFilter{ID: guardianID}); err != nil {
		return err
	}
	link := GuardianLink{MemberID: memberID, GuardianID: guardianID, Relationship: core.CleanString(relationship, true /* lower */)}
	return svc.repo.LinkGuardian(ctx, link)
}

func (svc *service) UnlinkGuardian(ctx context.Context, unitID, memberID, guardianID string) error {
	if _, err := svc.repo.GetMember(ctx, unitID, GetFilter{ID: memberID}); err != nil {
		return err
	}
	return svc.repo.UnlinkGuardian(ctx, memberID, guardianID)
}

func (svc *service) GuardiansOf(ctx context.Context, unitID, memberID string) ([]Guardian, error) {
	if _, err := svc.repo.GetMember(ctx, unitID, GetFilter{ID: memberID}); err != nil {
		return nil, err
	}
	return svc.repo.QueryGuardiansForMember(ctx, memberID)
}

func (svc *service) MembersOf(ctx context.Context, unitID, guardianID string) ([]Member, error) {
	if _, err := svc.repo.GetGuardian(ctx, unitID, GuardianGetFilter{ID: guardianID}); err != nil {
		return nil, err
	}
	return svc.repo.QueryMembersForGuardian(ctx, guardianID)
}

// GuardianGetFilter selects a single Guardian within a unit; the first non-empty field applies.
type GuardianGetFilter struct {
	ID    string
	Email string
}
