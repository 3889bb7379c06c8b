package schema

import "github.com/JonMunkholm/importer/internal/infer"

// BookFields defines the importable library catalogue fields.
var BookFields = []FieldDef{
	{Name: "accession_no", Type: infer.TypeID, Required: true, Unique: true, Transform: Trim},
	{Name: "title", Type: infer.TypeString, Required: true, Transform: Trim},
	{Name: "author", Type: infer.TypeString, Required: true, Transform: Trim},
	{Name: "isbn", Type: infer.TypeString, Transform: ToString},
	{Name: "category", Type: infer.TypeEnum, EnumValues: []string{"FICTION", "NON_FICTION", "REFERENCE", "TEXTBOOK", "PERIODICAL"}, Transform: ToUpper},
	{Name: "publisher", Type: infer.TypeString, Transform: Trim},
	{Name: "year", Type: infer.TypeInteger, Transform: ToInt(0)},
	{Name: "edition", Type: infer.TypeString, Transform: ToString},
	{Name: "pages", Type: infer.TypeInteger, Transform: ToInt(0)},
}

// BookSchema is the schema for the books entity.
var BookSchema = Schema{
	Entity:          Books,
	Label:           "Books",
	Fields:          BookFields,
	ExternalIDField: "accession_no",
}
