package schema

import "github.com/JonMunkholm/importer/internal/infer"

// StudentFields defines the importable student fields.
var StudentFields = []FieldDef{
	{Name: "student_id", Type: infer.TypeID, Required: true, Unique: true, Transform: Trim},
	{Name: "first_name", Type: infer.TypeString, Required: true, Transform: Trim},
	{Name: "last_name", Type: infer.TypeString, Required: true, Transform: Trim},
	{Name: "grade_level", Type: infer.TypeInteger, Transform: Chain(ToInt(0), Clamp(0, 12))},
	{Name: "grade_category", Type: infer.TypeEnum, EnumValues: []string{"REGULAR", "ADVANCED", "SPECIAL"}, Transform: ToUpper},
}

// StudentSchema is the schema for the students entity.
var StudentSchema = Schema{
	Entity:          Students,
	Label:           "Students",
	Fields:          StudentFields,
	ExternalIDField: "student_id",
}
