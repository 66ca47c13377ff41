// Package tables registers the import stages with the core registry.
// Import this package to ensure all stages are registered.
package tables

// Each stage file uses init() to register its stages. Orders are fixed:
// the institution stage first, the hierarchy stages of the metadata sheet,
// then academic years, students and enrollments.
