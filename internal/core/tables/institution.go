package tables

import (
	"context"

	"github.com/petermich29/uf-database/internal/core"
	"github.com/petermich29/uf-database/internal/schema"
	"github.com/petermich29/uf-database/internal/source"
	"github.com/petermich29/uf-database/internal/store"
)

func init() {
	registerInstitutions()
}

func registerInstitutions() {
	core.Register(core.StageDefinition{
		Info: core.StageInfo{
			Key:        "institution",
			Label:      "Institutions",
			Order:      1,
			Phase:      core.PhaseMetadata,
			Source:     source.Institutions,
			Table:      schema.Institutions,
			NaturalKey: []string{"institution_id"},
			Critical:   true,
		},
		Commit: core.CommitOnStageEnd,
		Build: func(row source.Row, _ *core.BuildContext) (any, error) {
			return core.Institution{
				ID:          cell(row, "institution_id"),
				Name:        text(row, "institution_nom"),
				Type:        core.NormalizeInstitutionType(row.Get("institution_type").Value()),
				Description: text(row, "institution_description"),
			}, nil
		},
		Upsert: func(ctx context.Context, sess store.Session, entity any) error {
			return core.UpsertInstitution(ctx, sess, entity.(core.Institution))
		},
	})
}
