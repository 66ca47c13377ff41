package tables

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/petermich29/uf-database/internal/core"
	"github.com/petermich29/uf-database/internal/schema"
	"github.com/petermich29/uf-database/internal/source"
	"github.com/petermich29/uf-database/internal/store"
)

// The metadata sheet is denormalized: every row repeats its unit, domain
// and family next to the program. Each stage keeps the first row per key.

func init() {
	registerOrganizationalUnits()
	registerDomains()
	registerProgramFamilies()
	registerPrograms()
}

func registerOrganizationalUnits() {
	core.Register(core.StageDefinition{
		Info: core.StageInfo{
			Key:        "organizational_unit",
			Label:      "Organizational units",
			Order:      2,
			Phase:      core.PhaseMetadata,
			Source:     source.Metadata,
			Table:      schema.OrganizationalUnits,
			NaturalKey: []string{"composante"},
		},
		Commit: core.CommitDeferred,
		Build: func(row source.Row, _ *core.BuildContext) (any, error) {
			return core.OrganizationalUnit{
				Code:          cell(row, "composante"),
				Label:         text(row, "label_composante"),
				Description:   text(row, "description_composante"),
				InstitutionID: text(row, "institution_id"),
			}, nil
		},
		Upsert: func(ctx context.Context, sess store.Session, entity any) error {
			return core.UpsertOrganizationalUnit(ctx, sess, entity.(core.OrganizationalUnit))
		},
	})
}

func registerDomains() {
	core.Register(core.StageDefinition{
		Info: core.StageInfo{
			Key:        "domain",
			Label:      "Domains",
			Order:      3,
			Phase:      core.PhaseMetadata,
			Source:     source.Metadata,
			Table:      schema.Domains,
			NaturalKey: []string{"domaine"},
		},
		Commit: core.CommitDeferred,
		Build: func(row source.Row, _ *core.BuildContext) (any, error) {
			return core.Domain{
				Code:        cell(row, "domaine"),
				Label:       text(row, "label_domaine"),
				Description: text(row, "description_domaine"),
			}, nil
		},
		Upsert: func(ctx context.Context, sess store.Session, entity any) error {
			return core.UpsertDomain(ctx, sess, entity.(core.Domain))
		},
	})
}

func registerProgramFamilies() {
	core.Register(core.StageDefinition{
		Info: core.StageInfo{
			Key:        "program_family",
			Label:      "Program families",
			Order:      4,
			Phase:      core.PhaseMetadata,
			Source:     source.Metadata,
			Table:      schema.ProgramFamilies,
			NaturalKey: []string{"id_mention"},
		},
		Commit: core.CommitDeferred,
		Build: func(row source.Row, _ *core.BuildContext) (any, error) {
			return core.ProgramFamily{
				ID:          cell(row, "id_mention"),
				Code:        text(row, "mention"),
				Label:       text(row, "label_mention"),
				Description: text(row, "description_mention"),
				UnitCode:    text(row, "composante"),
				DomainCode:  text(row, "domaine"),
			}, nil
		},
		Upsert: func(ctx context.Context, sess store.Session, entity any) error {
			return core.UpsertProgramFamily(ctx, sess, entity.(core.ProgramFamily))
		},
	})
}

func registerPrograms() {
	core.Register(core.StageDefinition{
		Info: core.StageInfo{
			Key:        "program",
			Label:      "Programs",
			Order:      5,
			Phase:      core.PhaseMetadata,
			Source:     source.Metadata,
			Table:      schema.Programs,
			NaturalKey: []string{"id_parcours"},
		},
		Commit: core.CommitDeferred,
		Build: func(row source.Row, bc *core.BuildContext) (any, error) {
			family, err := familyID(row, bc)
			if err != nil {
				return nil, err
			}
			return core.Program{
				ID:           cell(row, "id_parcours"),
				Code:         text(row, "parcours"),
				Label:        text(row, "label_parcours"),
				Description:  text(row, "description_parcours"),
				FamilyID:     family,
				CreationYear: yearValue(row, "date_creation", bc.DateOrder),
				EndYear:      yearValue(row, "date_fin", bc.DateOrder),
			}, nil
		},
		Upsert: func(ctx context.Context, sess store.Session, entity any) error {
			return core.UpsertProgram(ctx, sess, entity.(core.Program))
		},
	})
}

// familyID prefers the row's own id_mention and falls back to the first
// family declared with the row's mention code. A program never goes in
// without a family.
func familyID(row source.Row, bc *core.BuildContext) (pgtype.Text, error) {
	if id := text(row, "id_mention"); id.Valid {
		return id, nil
	}
	mention := cell(row, "mention")
	if id, ok := bc.FamilyIDForCode(mention); ok {
		return pgtype.Text{String: id, Valid: true}, nil
	}
	return pgtype.Text{}, &core.MissingParentError{Table: schema.Programs.Name, Column: "id_mention", Value: mention}
}
