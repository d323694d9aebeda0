package model

import (
	"time"

	"stealthcompany.com/labportal/internal/status"
)

// Sample categories drive how the generated sample name is built
const (
	CategoryCommercial = "commercial"
	CategoryTD         = "td"
	CategoryBenchmark  = "benchmark"
	CategoryInProcess  = "inprocess"
	CategoryChemicals  = "chemicals"
)

// SampleDefinition is a sample as entered in a request form or a sample set
type SampleDefinition struct {
	Category         string `json:"category"`
	Grade            string `json:"grade,omitempty"`
	LotNumber        string `json:"lotNumber,omitempty"`
	SampleIdentity   string `json:"sampleIdentity,omitempty"`
	TechShortCode    string `json:"techShortCode,omitempty"`
	FeatureShortCode string `json:"featureShortCode,omitempty"`
	BenchmarkCompany string `json:"benchmarkCompany,omitempty"`
	PolymerType      string `json:"polymerType,omitempty"`
	ChemicalName     string `json:"chemicalName,omitempty"`
	Form             string `json:"form,omitempty"`
	Remark           string `json:"remark,omitempty"`
	GeneratedName    string `json:"generatedName"`
}

// FileRef points at an object in file storage
type FileRef struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
	URL         string    `json:"url,omitempty"`
}

// TestingSample is one (sample, method) pair tracked through the lab
type TestingSample struct {
	TestingListID         string        `json:"testingListId"`
	RequestNumber         string        `json:"requestNumber"`
	SampleID              string        `json:"sampleId"`
	SampleName            string        `json:"sampleName"`
	MethodID              string        `json:"methodId,omitempty"`
	MethodCode            string        `json:"methodCode"`
	EquipmentName         string        `json:"equipmentName,omitempty"`
	CapabilityName        string        `json:"capabilityName,omitempty"`
	SampleStatus          status.Status `json:"sampleStatus"`
	Note                  string        `json:"note,omitempty"`
	ReceiveDate           *time.Time    `json:"receiveDate,omitempty"`
	ReceivedBy            string        `json:"receivedBy,omitempty"`
	OperationCompleteDate *time.Time    `json:"operationCompleteDate,omitempty"`
	OperationCompleteBy   string        `json:"operationCompleteBy,omitempty"`
	EntryResultDate       *time.Time    `json:"entryResultDate,omitempty"`
	EntryResultBy         string        `json:"entryResultBy,omitempty"`
	Attachments           []FileRef     `json:"attachments,omitempty"`
	CreatedAt             time.Time     `json:"createdAt"`
	UpdatedAt             time.Time     `json:"updatedAt"`
}

// SampleListItem is a testing sample joined with its request's requester
type SampleListItem struct {
	TestingSample
	RequesterName string      `json:"requesterName,omitempty"`
	RequestType   RequestType `json:"requestType,omitempty"`
}

// SampleSet is a named, reusable list of sample definitions
type SampleSet struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	OwnerEmail string             `json:"ownerEmail"`
	OwnerName  string             `json:"ownerName,omitempty"`
	Samples    []SampleDefinition `json:"samples"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// Statuses extracts the status of each sample
func Statuses(samples []TestingSample) []status.Status {
	out := make([]status.Status, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.SampleStatus)
	}
	return out
}
