package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Currency used for every amount in the estimator.
const Currency = "FCFA"

// Result is the outcome of one tax calculation. It is either an
// *Estimation or a *Failure; callers must switch on the concrete type
// (or on Succeeded) before reading fields.
type Result interface {
	Succeeded() bool
	isResult()
}

// InputVariable echoes one caller-supplied or derived figure.
type InputVariable struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Value       any    `json:"value"`
	Currency    string `json:"currency"`
}

// LineItem is one computed amount with its derivation.
type LineItem struct {
	Title       string  `json:"impotTitle"`
	Description string  `json:"impotDescription"`
	Amount      float64 `json:"impotValue"`
	Currency    string  `json:"impotValueCurrency"`
	Rate        string  `json:"impotTaux"`
	Derivation  string  `json:"importCalculeDescription"`
}

// Deadline is a single due date of an obligation.
type Deadline struct {
	Limit       string `json:"echeancePeriodeLimite"`
	Description string `json:"echeanceDescription"`
}

// Deadlines marshals as a bare object when it holds exactly one item.
type Deadlines []Deadline

func (d Deadlines) MarshalJSON() ([]byte, error) {
	if len(d) == 1 {
		return json.Marshal(d[0])
	}
	return json.Marshal([]Deadline(d))
}

func (d *Deadlines) UnmarshalJSON(b []byte) error {
	var many []Deadline
	if err := json.Unmarshal(b, &many); err == nil {
		*d = many
		return nil
	}
	var one Deadline
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*d = Deadlines{one}
	return nil
}

// Obligation is a filing or payment duty attached to a tax.
type Obligation struct {
	Title       string    `json:"impotTitle"`
	Description string    `json:"obligationDescription"`
	Deadlines   Deadlines `json:"echeancePaiement"`
}

// Note is a block of supplementary information.
type Note struct {
	Title        string   `json:"infosTitle"`
	Descriptions []string `json:"infosDescription"`
}

// PaymentDate is one entry of a tax's payment calendar.
type PaymentDate struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

// TaxConfig is the static presentation metadata of a tax.
type TaxConfig struct {
	Title           string        `json:"impotTitle"`
	Label           string        `json:"label"`
	Description     string        `json:"description"`
	CompetentCenter string        `json:"competentCenter"`
	PaymentSchedule []PaymentDate `json:"paymentSchedule"`
}

// Estimation is the success variant of Result.
type Estimation struct {
	Total       float64         `json:"totalEstimation"`
	Currency    string          `json:"totalEstimationCurrency"`
	Regime      string          `json:"contribuableRegime"`
	Variables   []InputVariable `json:"VariableEnter"`
	Details     []LineItem      `json:"impotDetailCalcule"`
	Obligations []Obligation    `json:"obligationEcheance"`
	Notes       []Note          `json:"infosSupplementaires"`
	Config      TaxConfig       `json:"impotConfig"`
}

func (*Estimation) Succeeded() bool { return true }
func (*Estimation) isResult()       {}

func (e *Estimation) MarshalJSON() ([]byte, error) {
	type plain Estimation
	return json.Marshal(struct {
		Success bool `json:"success"`
		*plain
	}{true, (*plain)(e)})
}

// Severity grades a failure.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ErrorCode is a machine-readable failure code exposed at the boundary.
type ErrorCode string

const (
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeConstantsUnavailable ErrorCode = "CONSTANTES_NON_DISPONIBLES"
	CodeThresholdExceeded    ErrorCode = "CHIFFRE_AFFAIRES_DEPASSE_SEUIL_TPS"
	CodeCalculation          ErrorCode = "CALCULATION_ERROR"
	CodeMissingData          ErrorCode = "MISSING_DATA"
	CodeEmptyData            ErrorCode = "EMPTY_DATA"
	CodeTaxNotFound          ErrorCode = "IMPOT_NOT_FOUND"
	CodeInternal             ErrorCode = "INTERNAL_SERVER_ERROR"
	CodeRateNotFound         ErrorCode = "TARIF_TFU_INTROUVABLE"
	CodeProfileUnavailable   ErrorCode = "DONNEES_FISCALES_NON_DISPONIBLES"
)

// ErrorDetail is one entry of a Failure's error list.
type ErrorDetail struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Details  string    `json:"details,omitempty"`
	Severity Severity  `json:"severity"`
}

// FailureContext describes the taxpayer situation a failure refers to.
type FailureContext struct {
	TaxpayerType string   `json:"typeContribuable"`
	Regime       string   `json:"regime"`
	Revenue      *float64 `json:"chiffreAffaire,omitempty"`
	MissingData  []string `json:"missingData,omitempty"`
}

// Failure is the failure variant of Result. It also satisfies error so
// the aggregate path can return it through ordinary error plumbing.
type Failure struct {
	Errors    []ErrorDetail  `json:"errors"`
	Context   FailureContext `json:"context"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"requestId"`
}

func (*Failure) Succeeded() bool { return false }
func (*Failure) isResult()       {}

func (f *Failure) Error() string {
	if len(f.Errors) == 0 {
		return "estimation failed"
	}
	return fmt.Sprintf("%s: %s", f.Errors[0].Code, f.Errors[0].Message)
}

// Code returns the first error code, which decides the HTTP status.
func (f *Failure) Code() ErrorCode {
	if len(f.Errors) == 0 {
		return CodeInternal
	}
	return f.Errors[0].Code
}

// Message returns the first error message.
func (f *Failure) Message() string {
	if len(f.Errors) == 0 {
		return ""
	}
	return f.Errors[0].Message
}

func (f *Failure) MarshalJSON() ([]byte, error) {
	type plain Failure
	return json.Marshal(struct {
		Success bool `json:"success"`
		*plain
	}{false, (*plain)(f)})
}

// NewFailure builds a single-error Failure. The request id follows the
// "<prefix>_<unix ms>" convention.
func NewFailure(prefix string, now time.Time, detail ErrorDetail, ctx FailureContext) *Failure {
	return &Failure{
		Errors:    []ErrorDetail{detail},
		Context:   ctx,
		Timestamp: now.UTC(),
		RequestID: fmt.Sprintf("%s_%d", prefix, now.UnixMilli()),
	}
}

// Float returns a pointer to v, for optional JSON numbers.
func Float(v float64) *float64 { return &v }
