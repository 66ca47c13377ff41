// Package core provides the business logic of the spreadsheet importer.
//
// This package contains all domain logic independent of the command line:
// cell normalization, entity upserts, the stage registry, row failure
// classification and the pipeline that drives the stages against a store.
// It can be used by the CLI or by tests without modification.
//
// # Stages
//
// Stages are registered at init time using [Register] (see package
// core/tables). Each [StageDefinition] names its source, natural key,
// commit policy and the functions that build and upsert one entity:
//
//	core.Register(core.StageDefinition{
//	    Info: core.StageInfo{Key: "domain", Order: 3, Phase: core.PhaseMetadata,
//	        Source: source.Metadata, Table: schema.Domains, NaturalKey: []string{"domaine"}},
//	    Commit: core.CommitDeferred,
//	    Build:  buildDomain,
//	    Upsert: upsertDomain,
//	})
//
// # Pipeline
//
// [Pipeline.Run] provisions the schema, then runs the metadata phase
// (institutions through programs) and the enrollment phase (academic years,
// students, enrollments). Each phase shares one session. Every row is
// attempted inside a savepoint, so a rejected row is logged and skipped
// without undoing its neighbours; commits follow the stage's [CommitMode].
//
// # Error Handling
//
// Row failures are bucketed by [Classify] into foreign key, unique, data
// truncation/type and unknown failures, each with a hint code for the
// summary. Fatal errors are mapped to operator messages using [MapError]:
//
//   - DB002-DB009: Row failures and connection errors
//   - SRC001-SRC006: Source file errors
//   - RUN001-RUN003: Interrupted and schema errors
package core
