package tables

import (
	"context"

	"github.com/petermich29/uf-database/internal/core"
	"github.com/petermich29/uf-database/internal/schema"
	"github.com/petermich29/uf-database/internal/source"
	"github.com/petermich29/uf-database/internal/store"
)

func init() {
	registerAcademicYears()
	registerStudents()
	registerEnrollments()
}

func registerAcademicYears() {
	core.Register(core.StageDefinition{
		Info: core.StageInfo{
			Key:        "academic_year",
			Label:      "Academic years",
			Order:      6,
			Phase:      core.PhaseEnrollment,
			Source:     source.Enrollments,
			Table:      schema.AcademicYears,
			NaturalKey: []string{"annee_universitaire"},
		},
		Commit: core.CommitOnStageEnd,
		Build: func(row source.Row, _ *core.BuildContext) (any, error) {
			return core.AcademicYear{Label: cell(row, "annee_universitaire")}, nil
		},
		Upsert: func(ctx context.Context, sess store.Session, entity any) error {
			return core.UpsertAcademicYear(ctx, sess, entity.(core.AcademicYear))
		},
	})
}

func registerStudents() {
	core.Register(core.StageDefinition{
		Info: core.StageInfo{
			Key:        "student",
			Label:      "Students",
			Order:      7,
			Phase:      core.PhaseEnrollment,
			Source:     source.Enrollments,
			Table:      schema.Students,
			NaturalKey: []string{"code_etudiant"},
		},
		Commit: core.CommitEachRow,
		Build: func(row source.Row, bc *core.BuildContext) (any, error) {
			return core.Student{
				Code:               cell(row, "code_etudiant"),
				RegistrationNumber: text(row, "numero_inscription"),
				LastName:           text(row, "nom"),
				FirstNames:         text(row, "prenoms"),
				Sex:                text(row, "sexe"),
				BirthDate:          core.CleanDate(row.Get("naissance_date").Value(), bc.DateOrder),
				BirthPlace:         text(row, "naissance_lieu"),
				Nationality:        text(row, "nationalite"),
				BaccYear:           yearValue(row, "bacc_annee", bc.DateOrder),
				BaccSeries:         text(row, "bacc_serie"),
				BaccCenter:         text(row, "bacc_centre"),
				Address:            text(row, "adresse"),
				Phone:              text(row, "telephone"),
				Email:              text(row, "mail"),
				IDNumber:           text(row, "cin"),
				IDIssueDate:        core.CleanDate(row.Get("cin_date").Value(), bc.DateOrder),
				IDIssuePlace:       text(row, "cin_lieu"),
			}, nil
		},
		Upsert: func(ctx context.Context, sess store.Session, entity any) error {
			return core.UpsertStudent(ctx, sess, entity.(core.Student))
		},
	})
}

func registerEnrollments() {
	core.Register(core.StageDefinition{
		Info: core.StageInfo{
			Key:        "enrollment",
			Label:      "Enrollments",
			Order:      8,
			Phase:      core.PhaseEnrollment,
			Source:     source.Enrollments,
			Table:      schema.Enrollments,
			NaturalKey: []string{"code_inscription"},
			Mandatory:  []string{"code_inscription", "code_etudiant", "annee_universitaire", "id_parcours", "niveau"},
		},
		Commit: core.CommitEveryN,
		Build: func(row source.Row, _ *core.BuildContext) (any, error) {
			return core.Enrollment{
				Code:        cell(row, "code_inscription"),
				StudentCode: cell(row, "code_etudiant"),
				YearLabel:   cell(row, "annee_universitaire"),
				ProgramID:   cell(row, "id_parcours"),
				Level:       cell(row, "niveau"),
				TrackType:   text(row, "formation"),
			}, nil
		},
		Upsert: func(ctx context.Context, sess store.Session, entity any) error {
			return core.UpsertEnrollment(ctx, sess, entity.(core.Enrollment))
		},
	})
}
