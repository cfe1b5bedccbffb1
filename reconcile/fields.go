package reconcile

// RuleKind selects the coercion applied to a raw field value.
type RuleKind string

const (
	RuleEnum    RuleKind = "enum"
	RuleVarchar RuleKind = "varchar"
	RulePhone   RuleKind = "phone"
	RuleDate    RuleKind = "date"
	RuleDecimal RuleKind = "decimal"
)

// FieldRule is one row of the table-driven validator.
type FieldRule struct {
	Field    string
	Kind     RuleKind
	MaxLen   int      // varchar truncation bound
	Allowed  []string // enum value set (canonical, lower case)
	Default  *string  // enum fallback when input is not in Allowed; nil means null
	Required bool     // empty input becomes a FieldError instead of null
	Identity bool     // participates in duplicate detection
}

// MaxPhoneDigits bounds normalized phone values.
const MaxPhoneDigits = 12

var dispositionValues = []string{
	"interested", "not interested", "converted", "call back",
	"rnr", "settled", "paid", "wrong number",
}

var callingCodeValues = []string{
	"wn", "nc", "cb", "ptp", "rtp", "bptp", "dis",
}

var fieldCodeValues = []string{
	"anf", "sw", "rescheduled", "visited", "door lock",
}

var productValues = []string{
	"personal loan", "business loan", "credit card", "two wheeler",
	"consumer durable", "home loan",
}

// DefaultRules is the canonical rule table for customer records. Order is the
// order errors are reported in.
func DefaultRules() []FieldRule {
	return []FieldRule{
		{Field: "name", Kind: RuleVarchar, MaxLen: 100, Required: true},
		{Field: "mobile", Kind: RulePhone, Required: true, Identity: true},
		{Field: "ref_mobile", Kind: RulePhone, Identity: true},
		{Field: "email", Kind: RuleVarchar, MaxLen: 100, Identity: true},
		{Field: "crn", Kind: RuleVarchar, MaxLen: 50, Identity: true},
		{Field: "loan_card_no", Kind: RuleVarchar, MaxLen: 50, Identity: true},
		{Field: "extra_mobiles", Kind: RuleVarchar, MaxLen: 255},
		{Field: "product", Kind: RuleEnum, Allowed: productValues},
		{Field: "bank_name", Kind: RuleVarchar, MaxLen: 100},
		{Field: "banker_name", Kind: RuleVarchar, MaxLen: 100},
		{Field: "agent_name", Kind: RuleVarchar, MaxLen: 100},
		{Field: "tl_name", Kind: RuleVarchar, MaxLen: 100},
		{Field: "supervisor_name", Kind: RuleVarchar, MaxLen: 100},
		{Field: "emi_amount", Kind: RuleDecimal},
		{Field: "loan_amount", Kind: RuleDecimal},
		{Field: "paid_amount", Kind: RuleDecimal},
		{Field: "settlement_amount", Kind: RuleDecimal},
		{Field: "address", Kind: RuleVarchar, MaxLen: 255},
		{Field: "pincode", Kind: RuleVarchar, MaxLen: 10},
		{Field: "calling_code", Kind: RuleEnum, Allowed: callingCodeValues},
		{Field: "field_code", Kind: RuleEnum, Allowed: fieldCodeValues},
		{Field: "disposition", Kind: RuleEnum, Allowed: dispositionValues},
		{Field: "comment", Kind: RuleVarchar, MaxLen: 500},
		{Field: "scheduled_at", Kind: RuleDate},
		{Field: "paid_date", Kind: RuleDate},
	}
}

// IdentityFields returns the field names participating in duplicate detection,
// in rule-table order.
func IdentityFields(rules []FieldRule) []string {
	var out []string
	for _, r := range rules {
		if r.Identity {
			out = append(out, r.Field)
		}
	}
	return out
}

// RuleFor looks a field's rule up by name. Second return is false when the
// field is not governed by the table.
func RuleFor(rules []FieldRule, field string) (FieldRule, bool) {
	for _, r := range rules {
		if r.Field == field {
			return r, true
		}
	}
	return FieldRule{}, false
}

// TrackedFields returns every field name the change log follows.
func TrackedFields(rules []FieldRule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Field)
	}
	return out
}
