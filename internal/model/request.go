package model

import (
	"fmt"
	"time"

	"stealthcompany.com/labportal/internal/status"
)

// RequestType tells the three request flows apart
type RequestType string

const (
	RequestTypeNTR RequestType = "NTR"
	RequestTypeER  RequestType = "ER"
	RequestTypeASR RequestType = "ASR"
)

// Priority levels
const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

// Urgent approval states
const (
	UrgentPending  = "pending"
	UrgentApproved = "approved"
	UrgentRejected = "rejected"
)

// Requester identifies who submitted a request and on whose behalf
type Requester struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
	OnBehalfOf string `json:"onBehalfOf,omitempty"`
}

// Funding carries exactly one of IONumber or CostCenter
type Funding struct {
	UseIONumber bool   `json:"useIONumber"`
	IONumber    string `json:"ioNumber,omitempty"`
	CostCenter  string `json:"costCenter,omitempty"`
}

// Priority holds the urgency level and the approver workflow state
type Priority struct {
	Level          string     `json:"level"`
	ApproverEmail  string     `json:"approverEmail,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	ApprovalStatus string     `json:"approvalStatus,omitempty"`
	ApprovalNote   string     `json:"approvalNote,omitempty"`
	DecidedAt      *time.Time `json:"decidedAt,omitempty"`
}

// MethodSelection is a test method chosen for a set of samples
type MethodSelection struct {
	MethodID      string   `json:"methodId"`
	MethodCode    string   `json:"methodCode,omitempty"`
	MethodName    string   `json:"methodName,omitempty"`
	EquipmentName string   `json:"equipmentName,omitempty"`
	SampleNames   []string `json:"sampleNames"`
	Remarks       string   `json:"remarks,omitempty"`
}

// SlotSelection lists the slots picked on one date for an ER
type SlotSelection struct {
	MethodID string   `json:"methodId"`
	Date     string   `json:"date"`
	Slots    []string `json:"slots"`
}

// Project holds the ASR specific fields
type Project struct {
	Name                  string `json:"name"`
	Objective             string `json:"objective"`
	ExpectedResults       string `json:"expectedResults,omitempty"`
	DesiredCompletionDate string `json:"desiredCompletionDate,omitempty"`
}

// Termination records who ended a request and why
type Termination struct {
	Reason       string    `json:"reason"`
	TerminatedBy string    `json:"terminatedBy"`
	TerminatedAt time.Time `json:"terminatedAt"`
}

// Request is the document stored in the requests collection, keyed by RequestNumber
type Request struct {
	RequestNumber  string             `json:"requestNumber"`
	RequestType    RequestType        `json:"requestType"`
	Title          string             `json:"title"`
	Requester      Requester          `json:"requester"`
	Funding        Funding            `json:"funding"`
	Priority       Priority           `json:"priority"`
	Status         status.Status      `json:"status"`
	CapabilityID   string             `json:"capabilityId,omitempty"`
	CapabilityName string             `json:"capabilityName,omitempty"`
	Samples        []SampleDefinition `json:"samples,omitempty"`
	TestMethods    []MethodSelection  `json:"testMethods,omitempty"`
	Equipment      []EquipmentBooking `json:"equipment,omitempty"`
	Project        *Project           `json:"project,omitempty"`
	ASRNumber      string             `json:"asrNumber,omitempty"`
	SubRequests    []string           `json:"subRequests,omitempty"`
	TotalCost      float64            `json:"totalCost"`
	Termination    *Termination       `json:"termination,omitempty"`
	Evaluated      bool               `json:"evaluated"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Prefix returns the request number prefix for the type
func (t RequestType) Prefix() string {
	return string(t)
}

// FormatRequestNumber renders TYPE-YYMM-NNNN
func FormatRequestNumber(t RequestType, at time.Time, seq uint64) string {
	return fmt.Sprintf("%s-%s-%04d", t.Prefix(), at.UTC().Format("0601"), seq)
}

// CounterKey is the document key of the sequence counter for a type and month
func CounterKey(t RequestType, at time.Time) string {
	return fmt.Sprintf("counter::%s-%s", t.Prefix(), at.UTC().Format("0601"))
}
