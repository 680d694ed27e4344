package loan

// TotalSteps is the number of canonical workflow steps.
const TotalSteps = 5

// Permissions are the user actions currently legal for an application.
type Permissions struct {
	CanExecute        bool `json:"can_execute"`
	CanAuthorContract bool `json:"can_author_contract"`
	CanDisburse       bool `json:"can_disburse"`
}

// Signals are facts about an application that live outside its own record.
type Signals struct {
	// ContractCompleted is the locally persisted "contract completed" flag.
	ContractCompleted bool
	// Disbursed is the HasDisbursed result for the application.
	Disbursed bool
}

// Classification is the derived view of one application.
type Classification struct {
	ApplicationID   string      `json:"application_id"`
	RawStatus       string      `json:"raw_status"`
	Stage           Stage       `json:"stage"`
	KnownStatus     bool        `json:"known_status"`
	CurrentStep     int         `json:"current_step"`
	ProgressPercent int         `json:"progress_percent"`
	Disbursed       bool        `json:"disbursed"`
	Permissions     Permissions `json:"permissions"`
	Steps           []Step      `json:"steps"`
}

// stageGrant lists what a stage allows before step and signal checks.
type stageGrant struct {
	execute        bool
	authorContract bool
	disburse       bool
}

// stageGrants is the permission truth table:
//
//	stage            | execute (step==5) | author (3<=step<6, no suffix) | disburse (unless disbursed)
//	SUBMITTED        | no                | no                            | via step 6/7, suffix or flag
//	UNDER_REVIEW     | no                | yes                           | via step 6/7, suffix or flag
//	APPROVED         | no                | yes                           | via step 6/7, suffix or flag
//	CONTRACT_CREATED | yes               | no                            | yes
//	COMPLETED        | no                | no                            | no
//	REJECTED         | no                | no                            | no
//	UNKNOWN          | no                | no                            | no
var stageGrants = map[Stage]stageGrant{
	StageSubmitted:       {},
	StageUnderReview:     {authorContract: true},
	StageApproved:        {authorContract: true},
	StageContractCreated: {execute: true, disburse: true},
}

// Derive returns the permissions for a canonical stage and step.
func Derive(stage Stage, step int, applicationID string, signals Signals) Permissions {
	grant, ok := stageGrants[stage]
	if !ok {
		return Permissions{}
	}
	hasSuffix := HasContractSuffix(applicationID)

	var p Permissions
	p.CanExecute = grant.execute && step == TotalSteps
	p.CanAuthorContract = grant.authorContract && step >= 3 && step < 6 && !hasSuffix
	disbursable := grant.disburse || step == 6 || step == 7 || hasSuffix || signals.ContractCompleted
	p.CanDisburse = disbursable && !signals.Disbursed
	return p
}

// Classify normalizes the application status and derives its permissions.
// It never fails: an unknown status yields StageUnknown and no permissions.
func Classify(app Application, signals Signals) Classification {
	stage, known := NormalizeStage(app.Status)
	return Classification{
		ApplicationID:   app.ID,
		RawStatus:       app.Status,
		Stage:           stage,
		KnownStatus:     known,
		CurrentStep:     app.CurrentStep,
		ProgressPercent: ProgressPercent(app.CurrentStep),
		Disbursed:       signals.Disbursed,
		Permissions:     Derive(stage, app.CurrentStep, app.ID, signals),
		Steps:           Steps(app.CurrentStep),
	}
}

// ProgressPercent is currentStep/5*100 clamped to [0,100]. Step 0 counts as step 1.
func ProgressPercent(step int) int {
	if step <= 0 {
		step = 1
	}
	percent := step * 100 / TotalSteps
	if percent > 100 {
		return 100
	}
	return percent
}

// Step is one entry of the workflow progress list.
type Step struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Current   bool   `json:"current"`
}

var stepTitles = [TotalSteps]string{
	"Limit and rate inquiry",
	"Document submission",
	"Document review",
	"Loan contract and desired date reservation",
	"Disbursement",
}

// Steps returns the workflow steps relative to currentStep.
func Steps(currentStep int) []Step {
	if currentStep <= 0 {
		currentStep = 1
	}
	steps := make([]Step, 0, TotalSteps)
	for i, title := range stepTitles {
		number := i + 1
		steps = append(steps, Step{
			Number:    number,
			Title:     title,
			Completed: number < currentStep,
			Current:   number == currentStep,
		})
	}
	return steps
}
