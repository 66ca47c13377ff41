package schema

// Constraint names referenced outside this package.
const (
	UniqueInstitutionName = "uq_institutions_name"
	UniqueEnrollmentCtx   = "uq_enrollment_context"
)

func varchar(name string, width int) Column {
	return Column{Name: name, Type: Varchar, Width: width, Nullable: true}
}

func key(name string, width int) Column {
	return Column{Name: name, Type: Varchar, Width: width}
}

func text(name string) Column {
	return Column{Name: name, Type: Text, Nullable: true}
}

func integer(name string) Column {
	return Column{Name: name, Type: Integer, Nullable: true}
}

func date(name string) Column {
	return Column{Name: name, Type: Date, Nullable: true}
}

var Institutions = &Table{
	Name:       "institutions",
	PrimaryKey: []string{"institution_id"},
	Columns: []Column{
		key("institution_id", 50),
		varchar("name", 255),
		varchar("type", 10),
		text("description"),
	},
	Uniques: []Unique{
		{Name: UniqueInstitutionName, Columns: []string{"name"}},
	},
	Enums: []Enum{
		{Name: "ck_institutions_type", Column: "type", Values: []string{"public", "private"}},
	},
}

var OrganizationalUnits = &Table{
	Name:       "organizational_units",
	PrimaryKey: []string{"unit_code"},
	Columns: []Column{
		key("unit_code", 10),
		varchar("label", 100),
		text("description"),
		varchar("institution_id", 50),
	},
	ForeignKeys: []ForeignKey{
		{Name: "fk_units_institution", Columns: []string{"institution_id"}, RefTable: "institutions", RefColumns: []string{"institution_id"}},
	},
}

var Domains = &Table{
	Name:       "domains",
	PrimaryKey: []string{"domain_code"},
	Columns: []Column{
		key("domain_code", 10),
		varchar("label", 100),
		text("description"),
	},
}

var ProgramFamilies = &Table{
	Name:       "program_families",
	PrimaryKey: []string{"family_id"},
	Columns: []Column{
		key("family_id", 50),
		varchar("code", 20),
		varchar("label", 100),
		text("description"),
		varchar("unit_code", 10),
		varchar("domain_code", 10),
	},
	ForeignKeys: []ForeignKey{
		{Name: "fk_families_unit", Columns: []string{"unit_code"}, RefTable: "organizational_units", RefColumns: []string{"unit_code"}},
		{Name: "fk_families_domain", Columns: []string{"domain_code"}, RefTable: "domains", RefColumns: []string{"domain_code"}},
	},
}

var Programs = &Table{
	Name:       "programs",
	PrimaryKey: []string{"program_id"},
	Columns: []Column{
		key("program_id", 50),
		varchar("code", 20),
		varchar("label", 100),
		text("description"),
		varchar("family_id", 50),
		integer("creation_year"),
		integer("end_year"),
	},
	ForeignKeys: []ForeignKey{
		{Name: "fk_programs_family", Columns: []string{"family_id"}, RefTable: "program_families", RefColumns: []string{"family_id"}},
	},
}

var AcademicYears = &Table{
	Name:       "academic_years",
	PrimaryKey: []string{"year_label"},
	Columns: []Column{
		key("year_label", 9),
		text("description"),
	},
}

var Students = &Table{
	Name:       "students",
	PrimaryKey: []string{"student_code"},
	Columns: []Column{
		key("student_code", 50),
		varchar("registration_number", 50),
		varchar("last_name", 100),
		varchar("first_names", 150),
		varchar("sex", 20),
		date("birth_date"),
		varchar("birth_place", 100),
		varchar("nationality", 50),
		integer("bacc_year"),
		varchar("bacc_series", 50),
		varchar("bacc_center", 100),
		varchar("address", 255),
		varchar("phone", 50),
		varchar("email", 100),
		varchar("id_number", 100),
		date("id_issue_date"),
		varchar("id_issue_place", 100),
	},
}

var Enrollments = &Table{
	Name:       "enrollments",
	PrimaryKey: []string{"enrollment_code"},
	Columns: []Column{
		key("enrollment_code", 50),
		key("student_code", 50),
		key("year_label", 9),
		key("program_id", 50),
		key("level", 20),
		varchar("track_type", 20),
	},
	ForeignKeys: []ForeignKey{
		{Name: "fk_enrollments_student", Columns: []string{"student_code"}, RefTable: "students", RefColumns: []string{"student_code"}},
		{Name: "fk_enrollments_year", Columns: []string{"year_label"}, RefTable: "academic_years", RefColumns: []string{"year_label"}},
		{Name: "fk_enrollments_program", Columns: []string{"program_id"}, RefTable: "programs", RefColumns: []string{"program_id"}},
	},
	Uniques: []Unique{
		{Name: UniqueEnrollmentCtx, Columns: []string{"student_code", "year_label", "program_id", "level"}},
	},
}

var ImportRuns = &Table{
	Name:       "import_runs",
	PrimaryKey: []string{"run_id"},
	Columns: []Column{
		key("run_id", 36),
		{Name: "started_at", Type: Timestamp},
		{Name: "finished_at", Type: Timestamp},
		key("status", 20),
		{Name: "rows_stored", Type: Integer},
		{Name: "rows_failed", Type: Integer},
	},
}

// All lists every table in foreign-key dependency order.
var All = []*Table{
	Institutions,
	OrganizationalUnits,
	Domains,
	ProgramFamilies,
	Programs,
	AcademicYears,
	Students,
	Enrollments,
	ImportRuns,
}

// Lookup returns the table with the given name.
func Lookup(name string) (*Table, bool) {
	for _, t := range All {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
