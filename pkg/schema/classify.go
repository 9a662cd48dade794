package schema

import (
	"strings"
	"unicode"
)

// FieldType is the semantic type inferred for a field.
type FieldType string

const (
	TypeIdentifier FieldType = "identifier"
	TypeDate       FieldType = "date"
	TypeNumeric    FieldType = "numeric"
	TypeStatus     FieldType = "status"
	TypeString     FieldType = "string"
	TypeGeneric    FieldType = "generic"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeIdentifier, TypeDate, TypeNumeric, TypeStatus, TypeString, TypeGeneric:
		return true
	}
	return false
}

var (
	dateTokens       = set("date", "time", "dob", "timestamp", "datetime", "birthdate", "birthday",
		"duedate", "startdate", "enddate")
	identifierTokens = set("id", "ids", "key", "uuid", "guid")
	// Numbers that are not arithmetic. These win over numericTokens.
	contactTokens = set("phone", "fax", "zip", "postal", "ssn", "mobile", "email", "npi")
	numericTokens = set("amount", "balance", "total", "count", "quantity", "qty", "estimate",
		"payments", "fee", "fees", "price", "cost", "charge", "charges", "number", "percent", "rate", "age")
	statusTokens = set("status", "type", "kind", "category", "stage")
	stringTokens = set("name", "fullname", "firstname", "lastname", "description", "desc", "note", "notes",
		"comment", "comments", "title", "label", "address", "city", "state", "country", "memo", "remark", "text")
)

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Classify infers a field's semantic type from its name alone.
//
// Names are split into tokens on separators and camelCase boundaries and
// keywords must match a whole token: "provider" is not an identifier, and
// "phone_number" is a string rather than a number.
func Classify(field string) FieldType {
	tokens := Tokens(field)
	switch {
	case hasAny(tokens, dateTokens):
		return TypeDate
	case hasAny(tokens, identifierTokens):
		return TypeIdentifier
	case hasAny(tokens, contactTokens):
		return TypeString
	case hasAny(tokens, numericTokens):
		return TypeNumeric
	case hasAny(tokens, statusTokens):
		return TypeStatus
	case hasAny(tokens, stringTokens):
		return TypeString
	}
	return TypeGeneric
}

func hasAny(tokens []string, words map[string]struct{}) bool {
	for _, t := range tokens {
		if _, ok := words[t]; ok {
			return true
		}
	}
	return false
}

// Tokens splits a field name into lower-case words.
// "patient_id", "patientId" and "Patient ID" all yield [patient id].
func Tokens(field string) []string {
	var (
		tokens []string
		cur    []rune
	)
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(field)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && len(cur) > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return tokens
}
