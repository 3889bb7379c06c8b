package schema

import "github.com/JonMunkholm/importer/internal/infer"

// EquipmentFields defines the importable equipment inventory fields.
var EquipmentFields = []FieldDef{
	{Name: "serial_number", Type: infer.TypeID, Required: true, Unique: true, Transform: ToUpper},
	{Name: "name", Type: infer.TypeString, Required: true, Transform: Trim},
	{Name: "type", Type: infer.TypeString, Transform: Trim},
	{Name: "brand", Type: infer.TypeString, Transform: Trim},
	{Name: "model", Type: infer.TypeString, Transform: ToString},
	{Name: "status", Type: infer.TypeEnum, EnumValues: []string{"AVAILABLE", "IN_USE", "MAINTENANCE", "RETIRED"}, Transform: ToUpper},
	{Name: "location", Type: infer.TypeString, Transform: Trim},
	{Name: "purchase_date", Type: infer.TypeDate},
	{Name: "warranty_expiry", Type: infer.TypeDate},
	{Name: "notes", Type: infer.TypeString, Transform: Trim},
}

// EquipmentSchema is the schema for the equipment entity.
var EquipmentSchema = Schema{
	Entity:          Equipment,
	Label:           "Equipment",
	Fields:          EquipmentFields,
	ExternalIDField: "serial_number",
}
