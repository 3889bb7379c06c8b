package infer

import "strings"

// hintRule maps column-name fragments onto a type.
// Rules are checked in order; the first match wins.
type hintRule struct {
	typ      InferredType
	contains []string
	suffixes []string
}

var hintRules = []hintRule{
	{typ: TypeEmail, contains: []string{"email", "e_mail", "mail"}},
	{typ: TypePhone, contains: []string{"phone", "mobile", "telephone", "contact_no"}},
	{typ: TypeURL, contains: []string{"url", "website", "link", "homepage"}},
	{typ: TypeDateTime, contains: []string{"timestamp", "datetime", "time", "created", "updated"}},
	{typ: TypeDate, contains: []string{"date", "dob", "birthday", "expiry"}},
	{typ: TypeID, suffixes: []string{"_id", "id", "_no", "no", "_code", "code", "number", "_num"}},
	{typ: TypeEnum, contains: []string{"status", "type", "category", "grade", "gender", "condition", "level"}},
	{typ: TypeBoolean, contains: []string{"active", "enabled", "is_", "has_", "flag"}},
	{typ: TypeNumber, contains: []string{"amount", "price", "cost", "quantity", "qty", "total", "count", "balance"}},
}

// NameHint derives a type hint from a column name, or "" when the name says
// nothing. Matching is case-insensitive and ignores separators other than
// underscores.
func NameHint(columnName string) InferredType {
	name := strings.ToLower(strings.TrimSpace(columnName))
	name = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(name)
	if name == "" {
		return ""
	}

	for _, rule := range hintRules {
		for _, frag := range rule.contains {
			if strings.Contains(name, frag) {
				return rule.typ
			}
		}
		for _, suf := range rule.suffixes {
			if strings.HasSuffix(name, suf) {
				return rule.typ
			}
		}
	}
	return ""
}
