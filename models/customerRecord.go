package models

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/multycomm/collection_backend/config"
	"bitbucket.org/multycomm/collection_backend/reconcile"
	"bitbucket.org/multycomm/collection_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// CustomerRecord is one customer/loan account. ExternalId is the
// human-readable identifier (DF_<n> / FF_<n>) and is immutable once assigned.
type CustomerRecord struct {
	ID         int    `gorm:"primary_key" json:"id"`
	TenantId   string `gorm:"size:64;not null;index;uniqueIndex:idx_record_external,priority:1" json:"tenant_id"`
	ExternalId string `gorm:"size:30;not null;uniqueIndex:idx_record_external,priority:2" json:"external_id"`
	Name       string `gorm:"size:100;not null" json:"name" binding:"required"`

	// identity-bearing fields, unique per tenant when non-empty
	Mobile     *string `gorm:"size:30;index" json:"mobile"`
	RefMobile  *string `gorm:"size:30;index" json:"ref_mobile"`
	Email      *string `gorm:"size:100;index" json:"email"`
	Crn        *string `gorm:"size:50;index" json:"crn"`
	LoanCardNo *string `gorm:"size:50;index" json:"loan_card_no"`

	// comma-separated secondary numbers, carried but not identity-matched
	ExtraMobiles *string `gorm:"size:255" json:"extra_mobiles"`

	Product          *string          `gorm:"size:50" json:"product"`
	BankName         *string          `gorm:"size:100" json:"bank_name"`
	BankerName       *string          `gorm:"size:100" json:"banker_name"`
	AgentName        *string          `gorm:"size:100;index" json:"agent_name"`
	TlName           *string          `gorm:"size:100" json:"tl_name"`
	SupervisorName   *string          `gorm:"size:100" json:"supervisor_name"`
	EmiAmount        *decimal.Decimal `gorm:"type:decimal(20,4)" json:"emi_amount"`
	LoanAmount       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"loan_amount"`
	PaidAmount       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"paid_amount"`
	SettlementAmount *decimal.Decimal `gorm:"type:decimal(20,4)" json:"settlement_amount"`
	Address          *string          `gorm:"size:255" json:"address"`
	Pincode          *string          `gorm:"size:10" json:"pincode"`
	CallingCode      *string          `gorm:"size:20" json:"calling_code"`
	FieldCode        *string          `gorm:"size:20" json:"field_code"`
	Disposition      *string          `gorm:"size:30;index" json:"disposition"`
	Comment          *string          `gorm:"size:500" json:"comment"`
	ScheduledAt      *time.Time       `gorm:"index" json:"scheduled_at"`
	PaidDate         *time.Time       `json:"paid_date"`

	DepartmentId *int      `gorm:"index" json:"department_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r CustomerRecord) GetId() int { return r.ID }

func (r CustomerRecord) GetCursor() string { return r.CreatedAt.String() }

const dateLayout = "2006-01-02"

// Snapshot projects the record onto the engine's normalized field map.
// Typed columns render to their canonical string form (dates YYYY-MM-DD,
// amounts via decimal.String).
func (r *CustomerRecord) Snapshot() map[string]*string {
	snap := map[string]*string{
		"name":            utils.NilIfEmpty(r.Name),
		"mobile":          r.Mobile,
		"ref_mobile":      r.RefMobile,
		"email":           r.Email,
		"crn":             r.Crn,
		"loan_card_no":    r.LoanCardNo,
		"extra_mobiles":   r.ExtraMobiles,
		"product":         r.Product,
		"bank_name":       r.BankName,
		"banker_name":     r.BankerName,
		"agent_name":      r.AgentName,
		"tl_name":         r.TlName,
		"supervisor_name": r.SupervisorName,
		"address":         r.Address,
		"pincode":         r.Pincode,
		"calling_code":    r.CallingCode,
		"field_code":      r.FieldCode,
		"disposition":     r.Disposition,
		"comment":         r.Comment,
	}
	snap["emi_amount"] = decimalToString(r.EmiAmount)
	snap["loan_amount"] = decimalToString(r.LoanAmount)
	snap["paid_amount"] = decimalToString(r.PaidAmount)
	snap["settlement_amount"] = decimalToString(r.SettlementAmount)
	snap["scheduled_at"] = dateToString(r.ScheduledAt)
	snap["paid_date"] = dateToString(r.PaidDate)
	return snap
}

// ApplyFields writes normalized engine values onto the typed columns.
// Only submitted fields (keys present in the map) are touched.
func (r *CustomerRecord) ApplyFields(fields map[string]*string) error {
	for field, value := range fields {
		switch field {
		case "name":
			r.Name = utils.DereferencePtr(value)
		case "mobile":
			r.Mobile = value
		case "ref_mobile":
			r.RefMobile = value
		case "email":
			r.Email = value
		case "crn":
			r.Crn = value
		case "loan_card_no":
			r.LoanCardNo = value
		case "extra_mobiles":
			r.ExtraMobiles = value
		case "product":
			r.Product = value
		case "bank_name":
			r.BankName = value
		case "banker_name":
			r.BankerName = value
		case "agent_name":
			r.AgentName = value
		case "tl_name":
			r.TlName = value
		case "supervisor_name":
			r.SupervisorName = value
		case "emi_amount":
			d, err := stringToDecimal(value)
			if err != nil {
				return err
			}
			r.EmiAmount = d
		case "loan_amount":
			d, err := stringToDecimal(value)
			if err != nil {
				return err
			}
			r.LoanAmount = d
		case "paid_amount":
			d, err := stringToDecimal(value)
			if err != nil {
				return err
			}
			r.PaidAmount = d
		case "settlement_amount":
			d, err := stringToDecimal(value)
			if err != nil {
				return err
			}
			r.SettlementAmount = d
		case "address":
			r.Address = value
		case "pincode":
			r.Pincode = value
		case "calling_code":
			r.CallingCode = value
		case "field_code":
			r.FieldCode = value
		case "disposition":
			r.Disposition = value
		case "comment":
			r.Comment = value
		case "scheduled_at":
			t, err := stringToDate(value)
			if err != nil {
				return err
			}
			r.ScheduledAt = t
		case "paid_date":
			t, err := stringToDate(value)
			if err != nil {
				return err
			}
			r.PaidDate = t
		}
	}
	return nil
}

func decimalToString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func stringToDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func dateToString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func stringToDate(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// identityValue returns the stored value of one identity column.
func (r *CustomerRecord) identityValue(field string) string {
	switch field {
	case "mobile":
		return utils.DereferencePtr(r.Mobile)
	case "ref_mobile":
		return utils.DereferencePtr(r.RefMobile)
	case "email":
		return utils.DereferencePtr(r.Email)
	case "crn":
		return utils.DereferencePtr(r.Crn)
	case "loan_card_no":
		return utils.DereferencePtr(r.LoanCardNo)
	default:
		return ""
	}
}

// IdentityRow projects the record for the duplicate detector.
func (r *CustomerRecord) IdentityRow() reconcile.CandidateRow {
	identity := map[string]string{}
	for _, field := range reconcile.IdentityFields(reconcile.DefaultRules()) {
		identity[field] = r.identityValue(field)
	}
	return reconcile.CandidateRow{
		Id:         r.ID,
		ExternalId: r.ExternalId,
		Name:       r.Name,
		Identity:   identity,
	}
}

/* reads */

func GetCustomerRecord(ctx context.Context, id int) (*CustomerRecord, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	return utils.FetchModel[CustomerRecord](ctx, tenantId, id)
}

func GetCustomerRecordByExternalId(ctx context.Context, externalId string) (*CustomerRecord, error) {
	db := config.GetDB()
	var result CustomerRecord
	err := db.WithContext(ctx).Where("external_id = ?", externalId).First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

// PhoneLookupSuffix reduces a dialer-supplied caller id to the digits used
// for suffix matching: the national significant number when the input parses
// as a phone number, otherwise the bare digits bounded to the last
// MaxPhoneDigits. "+91 98765 43210" and "9876543210" resolve the same record.
func PhoneLookupSuffix(raw string) string {
	if num, err := libphonenumber.Parse(strings.TrimSpace(raw), "IN"); err == nil && libphonenumber.IsPossibleNumber(num) {
		return strconv.FormatUint(num.GetNationalNumber(), 10)
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > reconcile.MaxPhoneDigits {
		digits = digits[len(digits)-reconcile.MaxPhoneDigits:]
	}
	return digits
}

// GetCustomerRecordByPhone serves the phone-lookup endpoint: match either the
// primary or the reference mobile on the caller's trailing digits, so stored
// numbers with or without a country code still resolve.
func GetCustomerRecordByPhone(ctx context.Context, phone string) (*CustomerRecord, error) {
	digits := PhoneLookupSuffix(phone)
	if digits == "" {
		return nil, utils.ErrorRecordNotFound
	}

	db := config.GetDB()
	var result CustomerRecord
	suffix := "%" + digits
	err := db.WithContext(ctx).
		Where("mobile LIKE ? OR ref_mobile LIKE ?", suffix, suffix).
		First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

type RecordFilter struct {
	Name        *string
	Mobile      *string
	ExternalId  *string
	Disposition *string
	AgentName   *string
	FromDate    *time.Time
	ToDate      *time.Time
}

// GetCustomerRecords lists records with LIKE filters, scoped by the actor's
// role: agents see only their own assignments, department admins their
// department, platform admins everything.
func GetCustomerRecords(ctx context.Context, filter RecordFilter) ([]*CustomerRecord, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&CustomerRecord{})

	dbCtx = scopeByRole(ctx, dbCtx)

	if filter.Name != nil && *filter.Name != "" {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*filter.Name+"%")
	}
	if filter.Mobile != nil && *filter.Mobile != "" {
		dbCtx = dbCtx.Where("mobile LIKE ? OR ref_mobile LIKE ?", "%"+*filter.Mobile+"%", "%"+*filter.Mobile+"%")
	}
	if filter.ExternalId != nil && *filter.ExternalId != "" {
		dbCtx = dbCtx.Where("external_id = ?", *filter.ExternalId)
	}
	if filter.Disposition != nil && *filter.Disposition != "" {
		dbCtx = dbCtx.Where("disposition = ?", *filter.Disposition)
	}
	if filter.AgentName != nil && *filter.AgentName != "" {
		dbCtx = dbCtx.Where("agent_name = ?", *filter.AgentName)
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("created_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("created_at <= ?", *filter.ToDate)
	}

	var results []*CustomerRecord
	if err := dbCtx.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

type CustomerRecordsConnection struct {
	Edges    []*CustomerRecordsEdge `json:"edges"`
	PageInfo *PageInfo              `json:"pageInfo"`
}

type CustomerRecordsEdge Edge[CustomerRecord]

func PaginateCustomerRecords(ctx context.Context, limit *int, after *string, filter RecordFilter) (*CustomerRecordsConnection, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&CustomerRecord{})
	dbCtx = scopeByRole(ctx, dbCtx)

	if filter.Name != nil && *filter.Name != "" {
		dbCtx.Where("name LIKE ?", "%"+*filter.Name+"%")
	}
	if filter.Disposition != nil && *filter.Disposition != "" {
		dbCtx.Where("disposition = ?", *filter.Disposition)
	}

	pageLimit := config.SearchLimit
	if limit != nil && *limit > 0 {
		pageLimit = *limit
	}
	edges, pageInfo, err := FetchPageCompositeCursor[CustomerRecord](dbCtx, pageLimit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}

	var conn CustomerRecordsConnection
	conn.PageInfo = pageInfo
	for _, edge := range edges {
		recordEdge := CustomerRecordsEdge(edge)
		conn.Edges = append(conn.Edges, &recordEdge)
	}
	return &conn, nil
}
