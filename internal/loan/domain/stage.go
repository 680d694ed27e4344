package loan

import "strings"

// Stage is the canonical status of a loan application.
type Stage string

const (
	StageSubmitted       Stage = "SUBMITTED"
	StageUnderReview     Stage = "UNDER_REVIEW"
	StageApproved        Stage = "APPROVED"
	StageContractCreated Stage = "CONTRACT_CREATED"
	StageCompleted       Stage = "COMPLETED"
	StageRejected        Stage = "REJECTED"
	// StageUnknown marks a label outside both vocabularies.
	StageUnknown Stage = "UNKNOWN"
)

// stageLabels maps both backend vocabularies onto canonical stages.
// Labels seen only in one vocabulary are mapped by meaning, never guessed.
var stageLabels = map[string]Stage{
	"서류제출":      StageSubmitted,
	"SUBMITTED": StageSubmitted,

	"서류심사":         StageUnderReview,
	"승인대기":         StageUnderReview,
	"PENDING":      StageUnderReview,
	"UNDER_REVIEW": StageUnderReview,

	"승인완료":     StageApproved,
	"심사완료":     StageApproved,
	"APPROVED": StageApproved,
	"DECISION": StageApproved,

	"계약완료":             StageContractCreated,
	"계약생성완료":           StageContractCreated,
	"송금가능":             StageContractCreated,
	"CONTRACT_CREATED": StageContractCreated,

	"대출실행":      StageCompleted,
	"COMPLETED": StageCompleted,

	"반려":       StageRejected,
	"REJECTED": StageRejected,
}

// NormalizeStage maps a raw status label to its canonical stage. Unmapped
// labels return StageUnknown and false.
func NormalizeStage(label string) (Stage, bool) {
	key := strings.TrimSpace(label)
	if stage, ok := stageLabels[key]; ok {
		return stage, true
	}
	if stage, ok := stageLabels[strings.ToUpper(key)]; ok {
		return stage, true
	}
	return StageUnknown, false
}

// Terminal reports whether the backend will never advance the stage again.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageRejected
}
