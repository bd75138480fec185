// Package records defines the CRM record types handled by crmstore and their
// storage schemas.
package records

import (
	"time"

	"github.com/shopspring/decimal"

	store "github.com/synergyfw/crmstore"
)

// Object types.
const (
	ObjectAccount     store.ObjectType = "Account"
	ObjectContact     store.ObjectType = "Contact"
	ObjectOpportunity store.ObjectType = "Opportunity"
	ObjectLead        store.ObjectType = "Lead"
	ObjectCase        store.ObjectType = "Case"
)

// Opportunity stages.
const (
	StageProspecting      = "Prospecting"
	StageQualification    = "Qualification"
	StageNeedsAnalysis    = "Needs Analysis"
	StageValueProposition = "Value Proposition"
	StageClosedWon        = "Closed Won"
	StageClosedLost       = "Closed Lost"
)

// Stages lists the opportunity stages in pipeline order.
var Stages = []string{
	StageProspecting,
	StageQualification,
	StageNeedsAnalysis,
	StageValueProposition,
	StageClosedWon,
	StageClosedLost,
}

// Account is a company or organization.
type Account struct {
	store.Base
	Name              string `json:"name" validate:"required,max=255"`
	Industry          string `json:"industry,omitempty" validate:"max=255"`
	Description       string `json:"description,omitempty"`
	NumberOfEmployees int    `json:"number_of_employees,omitempty" validate:"gte=0"`
}

func (*Account) Object() store.ObjectType { return ObjectAccount }

func (a *Account) Values() map[string]any {
	return a.BaseValues(map[string]any{
		"name":                a.Name,
		"industry":            a.Industry,
		"description":         a.Description,
		"number_of_employees": a.NumberOfEmployees,
	})
}

func (a *Account) Pointers() map[string]any {
	return a.BasePointers(map[string]any{
		"name":                &a.Name,
		"industry":            &a.Industry,
		"description":         &a.Description,
		"number_of_employees": &a.NumberOfEmployees,
	})
}

// Contact is a person, optionally linked to an Account by ID.
type Contact struct {
	store.Base
	FirstName string `json:"first_name,omitempty" validate:"max=255"`
	LastName  string `json:"last_name" validate:"required,max=255"`
	AccountID string `json:"account_id,omitempty"`
}

func (*Contact) Object() store.ObjectType { return ObjectContact }

func (c *Contact) Values() map[string]any {
	return c.BaseValues(map[string]any{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"account_id": c.AccountID,
	})
}

func (c *Contact) Pointers() map[string]any {
	return c.BasePointers(map[string]any{
		"first_name": &c.FirstName,
		"last_name":  &c.LastName,
		"account_id": &c.AccountID,
	})
}

// Opportunity is a potential deal with an Account.
type Opportunity struct {
	store.Base
	Name      string          `json:"name" validate:"required,max=255"`
	StageName string          `json:"stage_name" validate:"required,max=255"`
	CloseDate time.Time       `json:"close_date" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	AccountID string          `json:"account_id,omitempty"`
}

func (*Opportunity) Object() store.ObjectType { return ObjectOpportunity }

func (o *Opportunity) Values() map[string]any {
	return o.BaseValues(map[string]any{
		"name":       o.Name,
		"stage_name": o.StageName,
		"close_date": o.CloseDate,
		"amount":     o.Amount,
		"account_id": o.AccountID,
	})
}

func (o *Opportunity) Pointers() map[string]any {
	return o.BasePointers(map[string]any{
		"name":       &o.Name,
		"stage_name": &o.StageName,
		"close_date": &o.CloseDate,
		"amount":     &o.Amount,
		"account_id": &o.AccountID,
	})
}

// Lead is an unqualified prospect.
type Lead struct {
	store.Base
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name" validate:"required,max=255"`
	Company   string `json:"company" validate:"required,max=255"`
	Status    string `json:"status,omitempty"`
}

func (*Lead) Object() store.ObjectType { return ObjectLead }

func (l *Lead) Values() map[string]any {
	return l.BaseValues(map[string]any{
		"first_name": l.FirstName,
		"last_name":  l.LastName,
		"company":    l.Company,
		"status":     l.Status,
	})
}

func (l *Lead) Pointers() map[string]any {
	return l.BasePointers(map[string]any{
		"first_name": &l.FirstName,
		"last_name":  &l.LastName,
		"company":    &l.Company,
		"status":     &l.Status,
	})
}

// Case is a customer support issue.
type Case struct {
	store.Base
	Subject   string `json:"subject,omitempty" validate:"max=255"`
	Status    string `json:"status" validate:"required"`
	Origin    string `json:"origin" validate:"required"`
	AccountID string `json:"account_id,omitempty"`
}

func (*Case) Object() store.ObjectType { return ObjectCase }

func (c *Case) Values() map[string]any {
	return c.BaseValues(map[string]any{
		"subject":    c.Subject,
		"status":     c.Status,
		"origin":     c.Origin,
		"account_id": c.AccountID,
	})
}

func (c *Case) Pointers() map[string]any {
	return c.BasePointers(map[string]any{
		"subject":    &c.Subject,
		"status":     &c.Status,
		"origin":     &c.Origin,
		"account_id": &c.AccountID,
	})
}

var (
	_ store.Record = (*Account)(nil)
	_ store.Record = (*Contact)(nil)
	_ store.Record = (*Opportunity)(nil)
	_ store.Record = (*Lead)(nil)
	_ store.Record = (*Case)(nil)
)

// IsStage reports whether s is a known opportunity stage.
func IsStage(s string) bool {
	for _, st := range Stages {
		if st == s {
			return true
		}
	}
	return false
}
