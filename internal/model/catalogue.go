package model

import "time"

// Capability is a lab discipline grouping test methods (e.g. Rheology)
type Capability struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	ShortName   string `json:"shortName" yaml:"shortName"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Equipment is a lab instrument that test methods run on
type Equipment struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	CapabilityID string `json:"capabilityId" yaml:"capabilityId"`
	Location     string `json:"location,omitempty" yaml:"location"`
}

// TestMethod carries pricing and the bookable operating window
type TestMethod struct {
	ID                string  `json:"id" yaml:"id"`
	MethodCode        string  `json:"methodCode" yaml:"methodCode"`
	Name              string  `json:"name" yaml:"name"`
	CapabilityID      string  `json:"capabilityId" yaml:"capabilityId"`
	EquipmentID       string  `json:"equipmentId,omitempty" yaml:"equipmentId"`
	EquipmentName     string  `json:"equipmentName,omitempty" yaml:"equipmentName"`
	PricePerSample    float64 `json:"pricePerSample" yaml:"pricePerSample"`
	PricePerHour      float64 `json:"pricePerHour" yaml:"pricePerHour"`
	OperatingStart    int     `json:"operatingStartHour,omitempty" yaml:"operatingStartHour"`
	OperatingEnd      int     `json:"operatingEndHour,omitempty" yaml:"operatingEndHour"`
	SlotDurationHours float64 `json:"slotDurationHours,omitempty" yaml:"slotDurationHours"`
}

// EquipmentBooking is one reserved slot inside an ER request
type EquipmentBooking struct {
	EquipmentID     string     `json:"equipmentId"`
	EquipmentName   string     `json:"equipmentName"`
	MethodID        string     `json:"methodId"`
	ReservationDate string     `json:"reservationDate"`
	StartTime       string     `json:"startTime"`
	EndTime         string     `json:"endTime"`
	Approved        bool       `json:"approved"`
	ApprovedBy      string     `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
}

// Complaint is filed against a request
type Complaint struct {
	ID            string    `json:"id"`
	RequestNumber string    `json:"requestNumber"`
	Category      string    `json:"category"`
	Subject       string    `json:"subject"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	FiledBy       string    `json:"filedBy"`
	FiledByEmail  string    `json:"filedByEmail"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Evaluation is the requester's score for a completed request
type Evaluation struct {
	ID             string    `json:"id"`
	RequestNumber  string    `json:"requestNumber"`
	Score          int       `json:"score"`
	Comment        string    `json:"comment,omitempty"`
	Evaluator      string    `json:"evaluator"`
	EvaluatorEmail string    `json:"evaluatorEmail"`
	CreatedAt      time.Time `json:"createdAt"`
}
